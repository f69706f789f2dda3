// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration. Fields are dual-tagged so
// the same struct can be populated from config.toml or from environment
// variables via viper.
type Config struct {
	DBURL        string `toml:"dbUrl" mapstructure:"dbUrl"`
	DataDir      string `toml:"dataDir" mapstructure:"dataDir"`
	Host         string `toml:"host" mapstructure:"host"`
	LogLevel     string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath      string `toml:"logPath" mapstructure:"logPath"`
	MikanBaseURL string `toml:"mikanBaseUrl" mapstructure:"mikanBaseUrl"`
	BangumiAPI   string `toml:"bangumiApiBaseUrl" mapstructure:"bangumiApiBaseUrl"`
	HTTPProxyURL string `toml:"httpProxyUrl" mapstructure:"httpProxyUrl"`
	UserAgent    string `toml:"userAgent" mapstructure:"userAgent"`
	DownloadDir  string `toml:"downloadDir" mapstructure:"downloadDir"`

	Port int `toml:"port" mapstructure:"port"`

	BangumiSubTTL                int `toml:"bangumiSubTtl" mapstructure:"bangumiSubTtl"`
	BangumiNonSubTTL             int `toml:"bangumiNonsubTtl" mapstructure:"bangumiNonsubTtl"`
	BangumiCalendarTTL           int `toml:"bangumiCalendarTtl" mapstructure:"bangumiCalendarTtl"`
	BangumiSubRefreshInterval    int `toml:"bangumiSubRefreshInterval" mapstructure:"bangumiSubRefreshInterval"`
	BangumiNonSubRefreshInterval int `toml:"bangumiNonsubRefreshInterval" mapstructure:"bangumiNonsubRefreshInterval"`
	BangumiCalendarRefreshInterval int `toml:"bangumiCalendarRefreshInterval" mapstructure:"bangumiCalendarRefreshInterval"`

	CrawlerDetailConcurrency int `toml:"crawlerDetailConcurrency" mapstructure:"crawlerDetailConcurrency"`
	WorkerPermits            int `toml:"workerPermits" mapstructure:"workerPermits"`
	CacheSweepConcurrency    int `toml:"cacheSweepConcurrency" mapstructure:"cacheSweepConcurrency"`
	DownloadReconcileConcurrency int `toml:"downloadReconcileConcurrency" mapstructure:"downloadReconcileConcurrency"`
}

// Default returns the configuration defaults pinned by the specification.
func Default() Config {
	return Config{
		DBURL:        "sqlite:ikuyo.db?mode=rwc",
		DataDir:      ".",
		Host:         "127.0.0.1",
		LogLevel:     "info",
		MikanBaseURL: "https://mikanani.me",
		BangumiAPI:   "https://api.bgm.tv",
		UserAgent:    "ikuyo-go/1.0",
		DownloadDir:  "downloads",
		Port:         9981,

		BangumiSubTTL:                  3600,
		BangumiNonSubTTL:               43200,
		BangumiCalendarTTL:             86400,
		BangumiSubRefreshInterval:      3600,
		BangumiNonSubRefreshInterval:   43200,
		BangumiCalendarRefreshInterval: 86400,

		CrawlerDetailConcurrency:    8,
		WorkerPermits:               2,
		CacheSweepConcurrency:       8,
		DownloadReconcileConcurrency: 8,
	}
}
