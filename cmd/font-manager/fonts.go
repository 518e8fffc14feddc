package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fontkit/font-manager/pkg/fm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed font families",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userOnly, _ := cmd.Flags().GetBool("user")
		disabledOnly, _ := cmd.Flags().GetBool("disabled")

		catalog, err := manager.Catalog(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing fonts: %w", err)
		}

		var families []*fm.Family
		for _, f := range catalog.Families() {
			if userOnly && f.Owner() != fm.User {
				continue
			}
			if disabledOnly && f.Enabled {
				continue
			}
			families = append(families, f)
		}
		printFamilies(families)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search families by name, style, foundry or PostScript name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		families, err := manager.Search(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("searching fonts: %w", err)
		}
		printFamilies(families)
		return nil
	},
}

func printFamilies(families []*fm.Family) {
	if len(families) == 0 {
		fmt.Println("No fonts found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tSTYLES\tOWNER\tSTATUS")
	for _, f := range families {
		status := "enabled"
		if !f.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f.Name, len(f.Styles), f.Owner(), status)
	}
	w.Flush()
}

var infoCmd = &cobra.Command{
	Use:   "info [family]",
	Short: "Show details of a font family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := manager.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		status := "enabled"
		if !info.Enabled {
			status = "disabled"
		}
		fmt.Printf("Family:      %s\n", info.Name)
		fmt.Printf("Owner:       %s\n", info.Owner())
		fmt.Printf("Status:      %s\n", status)
		fmt.Printf("License:     %s", info.License.Name)
		if info.License.URL != "" {
			fmt.Printf(" (%s)", info.License.URL)
		}
		fmt.Println()
		if info.Source != "" {
			fmt.Printf("Source:      %s\n", info.Source)
		}
		if len(info.Collections) > 0 {
			fmt.Printf("Collections: %s\n", strings.Join(info.Collections, ", "))
		}

		fmt.Println("\nStyles:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, name := range info.StyleNames() {
			r := info.Styles[name]
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", name, r.PWeight, r.Filetype, r.Version, r.Filepath)
		}
		w.Flush()
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install [font names, URLs or files...] | -f <file>",
	Short: "Install one or more fonts",
	Long: `Install one or more fonts from local files or any supported source.
You can specify multiple fonts and mix sources:

Examples:
  # Install a single font
  font-manager install "FiraCode"

  # Install fonts from specific sources
  font-manager install "FiraCode@nerdfonts" "RobotoMono@fontsource"

  # Install local font files and zip archives
  font-manager install ~/Downloads/Inter.zip ./MyFont.otf

  # Install multiple fonts from a config file
  font-manager install -f fonts.txt`,
	Args: func(cmd *cobra.Command, args []string) error {
		fileFlag, _ := cmd.Flags().GetString("file")
		if fileFlag != "" {
			if len(args) > 0 {
				return fmt.Errorf("when using -f flag, no additional arguments should be provided")
			}
			return nil
		}
		if len(args) < 1 {
			return fmt.Errorf("requires at least 1 font name when not using -f flag")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("file")
		if configFile != "" {
			file, err := os.Open(configFile)
			if err != nil {
				return fmt.Errorf("opening config file: %w", err)
			}
			defer file.Close()

			fmt.Printf("Installing fonts from %s...\n", configFile)
			if err := manager.InstallFromConfig(cmd.Context(), file); err != nil {
				return fmt.Errorf("installing fonts from config: %w", err)
			}
			fmt.Println("Successfully installed fonts from config file")
			return nil
		}

		// Local files go through the installer in one batch
		var files, names []string
		for _, arg := range args {
			if info, err := os.Stat(arg); err == nil && !info.IsDir() {
				files = append(files, arg)
			} else {
				names = append(names, arg)
			}
		}

		var failed, skipped []string
		successful := 0

		if len(files) > 0 {
			res, err := manager.InstallFiles(cmd.Context(), files...)
			if err != nil {
				return fmt.Errorf("installing files: %w", err)
			}
			successful += len(res.Installed)
			skipped = append(skipped, res.Duplicates...)
			for _, name := range res.Skipped {
				fmt.Fprintf(os.Stderr, "Ignored %s (not a font)\n", name)
			}
		}

		for _, name := range names {
			fmt.Printf("Installing %s...\n", name)
			if err := manager.Install(cmd.Context(), name); err != nil {
				if errors.Is(err, fm.ErrAlreadyInstalled) || errors.Is(err, fm.ErrDuplicate) {
					fmt.Printf("Skipped %s (already installed)\n", name)
					skipped = append(skipped, name)
					continue
				}
				fmt.Fprintf(os.Stderr, "Error installing %s: %v\n", name, err)
				failed = append(failed, name)
				continue
			}
			fmt.Printf("Successfully installed %s\n", name)
			successful++
		}

		// Print summary
		fmt.Printf("\nInstallation Summary:\n")
		fmt.Printf("Successfully installed: %d\n", successful)
		if len(skipped) > 0 {
			fmt.Printf("Skipped (already installed): %d\n", len(skipped))
			for _, name := range skipped {
				fmt.Printf("  - %s\n", name)
			}
		}
		if len(failed) > 0 {
			fmt.Printf("Failed to install: %d\n", len(failed))
			for _, name := range failed {
				fmt.Printf("  - %s\n", name)
			}
			return fmt.Errorf("some fonts failed to install")
		}
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [family]",
	Short: "Uninstall a user-installed font family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		fmt.Printf("Uninstalling %s...\n", name)
		if err := manager.Uninstall(cmd.Context(), name); err != nil {
			return fmt.Errorf("uninstalling %s: %w", name, err)
		}
		fmt.Printf("Successfully uninstalled %s\n", name)
		return nil
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable [families...]",
	Short: "Make disabled families available to applications again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.Enable(args...); err != nil {
			return fmt.Errorf("enabling fonts: %w", err)
		}
		updateFontCache()
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [families...]",
	Short: "Hide families from applications without removing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.Disable(args...); err != nil {
			return fmt.Errorf("disabling fonts: %w", err)
		}
		updateFontCache()
		return nil
	},
}

// updateFontCache refreshes fontconfig after a blacklist change; a failure
// only delays when applications notice.
func updateFontCache() {
	if err := manager.UpdateCache(); err != nil {
		logger.Warn("failed to update font cache", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(listCmd, searchCmd, infoCmd, installCmd, uninstallCmd, enableCmd, disableCmd)

	listCmd.Flags().Bool("user", false, "Only list user-installed families")
	listCmd.Flags().Bool("disabled", false, "Only list disabled families")
	installCmd.Flags().StringP("file", "f", "", "Install fonts from a config file")
}
