// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relaydesk/relaydesk/internal/config"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Long: `Write a commented relaydesk.yaml template to the default config path
(~/.config/relaydesk/relaydesk.yaml) so it can be edited before the first
start. Refuses to overwrite an existing file unless --force is given.`,
		RunE: runInit,
	}

	cmd.Flags().String("path", "", "write the config to this path instead of the default")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().Bool("print", false, "print the template to stdout instead of writing it")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	if err := validateTemplate(config.DefaultConfigYAML); err != nil {
		return err
	}

	if print, _ := cmd.Flags().GetBool("print"); print {
		_, err := cmd.OutOrStdout().Write(config.DefaultConfigYAML)
		return err
	}

	cfgPath, _ := cmd.Flags().GetString("path")
	if cfgPath == "" {
		resolved, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if _, err := os.Stat(cfgPath); err == nil {
			return rderr.Errorf(rderr.CodeCLIInputInvalid,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return rderr.Wrapf(err, rderr.CodeCLISetupFailure, "creating config directory %s", dir)
	}
	if err := os.WriteFile(cfgPath, config.DefaultConfigYAML, 0o600); err != nil {
		return rderr.Wrapf(err, rderr.CodeCLISetupFailure, "writing config to %s", cfgPath)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", cfgPath)
	return nil
}

// validateTemplate guards against the embedded template drifting out of
// YAML shape during development.
func validateTemplate(raw []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return rderr.Wrapf(err, rderr.CodeCLISetupFailure, "default config template is not valid YAML")
	}
	return nil
}
