package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Manage additional font directories",
}

var dirsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List additional font directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs := manager.Directories().List()
		if len(dirs) == 0 {
			fmt.Println("No additional directories")
			return nil
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	},
}

var dirsAddCmd = &cobra.Command{
	Use:   "add [directory]",
	Short: "Add a directory whose fonts should be available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.AddDirectory(cmd.Context(), args[0])
	},
}

var dirsRemoveCmd = &cobra.Command{
	Use:   "remove [directory]",
	Short: "Stop using a font directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manager.RemoveDirectory(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(dirsCmd)
	dirsCmd.AddCommand(dirsListCmd, dirsAddCmd, dirsRemoveCmd)
}
