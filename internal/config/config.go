// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads domain.Config from config.toml (if present) and
// IKUYO_-prefixed environment variables, with in-code defaults as the
// bottom layer.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/niloux/ikuyo-go/internal/domain"
)

const envPrefix = "IKUYO"

// Load builds a domain.Config by merging defaults, an optional TOML file at
// path, and environment overrides, in that precedence order (low to high).
func Load(path string) (domain.Config, error) {
	defaults := domain.Default()

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v, defaults)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return domain.Config{}, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d domain.Config) {
	v.SetDefault("dbUrl", d.DBURL)
	v.SetDefault("dataDir", d.DataDir)
	v.SetDefault("host", d.Host)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logPath", d.LogPath)
	v.SetDefault("mikanBaseUrl", d.MikanBaseURL)
	v.SetDefault("bangumiApiBaseUrl", d.BangumiAPI)
	v.SetDefault("httpProxyUrl", d.HTTPProxyURL)
	v.SetDefault("userAgent", d.UserAgent)
	v.SetDefault("downloadDir", d.DownloadDir)
	v.SetDefault("port", d.Port)
	v.SetDefault("bangumiSubTtl", d.BangumiSubTTL)
	v.SetDefault("bangumiNonsubTtl", d.BangumiNonSubTTL)
	v.SetDefault("bangumiCalendarTtl", d.BangumiCalendarTTL)
	v.SetDefault("bangumiSubRefreshInterval", d.BangumiSubRefreshInterval)
	v.SetDefault("bangumiNonsubRefreshInterval", d.BangumiNonSubRefreshInterval)
	v.SetDefault("bangumiCalendarRefreshInterval", d.BangumiCalendarRefreshInterval)
	v.SetDefault("crawlerDetailConcurrency", d.CrawlerDetailConcurrency)
	v.SetDefault("workerPermits", d.WorkerPermits)
	v.SetDefault("cacheSweepConcurrency", d.CacheSweepConcurrency)
	v.SetDefault("downloadReconcileConcurrency", d.DownloadReconcileConcurrency)
}
