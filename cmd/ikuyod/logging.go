// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/niloux/ikuyo-go/internal/domain"
)

// initLogging configures the package-level zerolog logger from cfg: level
// from LogLevel, and a rotating file sink alongside stderr when LogPath is
// set. Called once at process startup, before anything else logs.
func initLogging(cfg domain.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer io.Writer = os.Stderr
	if cfg.LogPath != "" {
		writer = zerolog.MultiLevelWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}
