// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/niloux/ikuyo-go/internal/domain"
)

// ResolveSQLitePath extracts the filesystem path from a "sqlite:path?query"
// db_url. An absolute path is used verbatim; a relative path is joined
// under cfg.DataDir so the two configuration knobs never silently disagree
// about which directory wins (see SPEC_FULL.md Open Question 1).
func ResolveSQLitePath(cfg domain.Config) string {
	raw := cfg.DBURL
	raw = strings.TrimPrefix(raw, "sqlite:")
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		raw = "ikuyo.db"
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	if filepath.IsAbs(raw) {
		return raw
	}
	return filepath.Join(cfg.DataDir, raw)
}

// ResolveDownloadDir returns the directory the download engine stores torrent
// data under. An absolute cfg.DownloadDir is used verbatim; a relative one is
// joined under cfg.DataDir, same rule as ResolveSQLitePath.
func ResolveDownloadDir(cfg domain.Config) string {
	raw := cfg.DownloadDir
	if raw == "" {
		raw = "downloads"
	}
	if filepath.IsAbs(raw) {
		return raw
	}
	return filepath.Join(cfg.DataDir, raw)
}
