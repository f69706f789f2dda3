// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/niloux/ikuyo-go/internal/config"
	"github.com/niloux/ikuyo-go/internal/domain"
)

var configPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ikuyod",
		Short: "Release-tracker crawler, metadata cache, and download engine daemon",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (optional; defaults + env still apply)")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newDBCommand())
	return cmd
}

// loadConfig resolves the merged configuration and sets up logging from it,
// the shared first step of every subcommand.
func loadConfig() (domain.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return domain.Config{}, err
	}
	initLogging(cfg)
	return cfg, nil
}
