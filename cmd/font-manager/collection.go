package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"col"},
	Short:   "Organise families into named collections",
}

// saved runs a store mutation and persists the collections.
func saved(err error) error {
	if err != nil {
		return err
	}
	return manager.Collections().Save()
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		collections := manager.Collections().List()
		if len(collections) == 0 {
			fmt.Println("No collections")
			return nil
		}
		for i, c := range collections {
			state := ""
			if !c.Enabled {
				state = " (disabled)"
			}
			fmt.Printf("%d. %s [%d]%s\n", i, c.Name, len(c.Families), state)
			if c.Comment != "" {
				fmt.Printf("   %s\n", c.Comment)
			}
		}
		return nil
	},
}

var collectionShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show the families of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := manager.Collections().Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (enabled: %t)\n", c.Name, c.Enabled)
		if c.Comment != "" {
			fmt.Println(c.Comment)
		}
		for _, f := range c.Families {
			fmt.Printf("  - %s\n", f)
		}
		return nil
	},
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		return saved(manager.Collections().Create(args[0], comment))
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection, leaving its families untouched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saved(manager.Collections().Delete(args[0]))
	},
}

var collectionRenameCmd = &cobra.Command{
	Use:   "rename [old] [new]",
	Short: "Rename a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saved(manager.Collections().Rename(args[0], args[1]))
	},
}

var collectionCommentCmd = &cobra.Command{
	Use:   "comment [name] [comment...]",
	Short: "Set the comment of a collection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saved(manager.Collections().SetComment(args[0], strings.Join(args[1:], " ")))
	},
}

var collectionAddCmd = &cobra.Command{
	Use:   "add [name] [families...]",
	Short: "Add families to a collection, creating it if needed",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.AddToCollection(args[0], args[1:]...)
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove [name] [families...]",
	Short: "Remove families from a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return saved(manager.Collections().RemoveFamilies(args[0], args[1:]...))
	},
}

var collectionEnableCmd = &cobra.Command{
	Use:   "enable [name]",
	Short: "Enable a collection and all of its families",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.SetCollectionEnabled(args[0], true); err != nil {
			return err
		}
		updateFontCache()
		return nil
	},
}

var collectionDisableCmd = &cobra.Command{
	Use:   "disable [name]",
	Short: "Disable a collection and all of its families",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.SetCollectionEnabled(args[0], false); err != nil {
			return err
		}
		updateFontCache()
		return nil
	},
}

var collectionMoveCmd = &cobra.Command{
	Use:   "move [name] [position]",
	Short: "Move a collection to a position in the list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[1], err)
		}
		return saved(manager.Collections().Move(args[0], pos))
	},
}

var collectionExportCmd = &cobra.Command{
	Use:   "export [name] [directory]",
	Short: "Copy the font files of a collection into a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := manager.Export(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("exporting %s: %w", args[0], err)
		}
		fmt.Printf("Copied %d files to %s\n", n, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(
		collectionListCmd,
		collectionShowCmd,
		collectionCreateCmd,
		collectionDeleteCmd,
		collectionRenameCmd,
		collectionCommentCmd,
		collectionAddCmd,
		collectionRemoveCmd,
		collectionEnableCmd,
		collectionDisableCmd,
		collectionMoveCmd,
		collectionExportCmd,
	)

	collectionCreateCmd.Flags().String("comment", "", "Describe the collection")
}
