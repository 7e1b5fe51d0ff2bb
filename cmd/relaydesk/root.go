// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/config"
)

// NewRootCmd creates the root relaydesk command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relaydesk",
		Short:         "Real-time channel communication server",
		Long:          "RelayDesk manages chat channels, membership lifecycle, and real-time event fan-out for team workspaces.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newTailCmd(),
		newVersionCmd(),
	)

	return root
}

// resolveConfigPath returns the --config flag value when set, otherwise
// the default location if a file exists there. An empty return means
// defaults and environment only.
func resolveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path, err := config.DefaultConfigPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
