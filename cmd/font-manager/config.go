package main

import (
	"fmt"
	"os"

	"github.com/fontkit/font-manager/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the font-manager configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a configuration file with the default settings",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noManager: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noManager: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Write(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
}
