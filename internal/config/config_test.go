// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, domain.Default().BangumiSubTTL, cfg.BangumiSubTTL)
	assert.Equal(t, "sqlite:ikuyo.db?mode=rwc", cfg.DBURL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("bangumiSubTtl = 111\nport = 4000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 111, cfg.BangumiSubTTL)
	assert.Equal(t, 4000, cfg.Port)
	// unset keys keep their defaults
	assert.Equal(t, 43200, cfg.BangumiNonSubTTL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IKUYO_PORT", "5555")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5555, cfg.Port)
}

func TestResolveSQLitePath(t *testing.T) {
	cfg := domain.Default()
	cfg.DataDir = "/var/lib/ikuyo"
	cfg.DBURL = "sqlite:ikuyo.db?mode=rwc"
	assert.Equal(t, "/var/lib/ikuyo/ikuyo.db", ResolveSQLitePath(cfg))

	cfg.DBURL = "sqlite:/abs/path/ikuyo.db"
	assert.Equal(t, "/abs/path/ikuyo.db", ResolveSQLitePath(cfg))
}
