// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/niloux/ikuyo-go/internal/config"
	"github.com/niloux/ikuyo-go/internal/database"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance operations",
	}

	cmd.AddCommand(newDBMigrateCommand())
	cmd.AddCommand(newDBCheckpointCommand())
	return cmd
}

func newDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply any pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.New(config.ResolveSQLitePath(cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			cmd.Println("Migrations applied.")
			return nil
		},
	}
}

func newDBCheckpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Run a full WAL checkpoint against the database and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.New(config.ResolveSQLitePath(cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Checkpoint(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("WAL checkpoint complete.")
			return nil
		},
	}
}
