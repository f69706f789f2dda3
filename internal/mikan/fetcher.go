// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package mikan fetches and parses release-tracker pages from the upstream
// Mikan site: list pages yield detail URLs, detail pages yield an
// AnimeBundle (show, subtitle groups, resources).
package mikan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/niloux/ikuyo-go/internal/apperr"
)

const defaultTimeout = 30 * time.Second

// Fetcher performs timed GETs against the upstream site, honoring an
// optional forward proxy and a fixed user-agent.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// Config configures a Fetcher.
type Config struct {
	BaseURL   string
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
}

// NewFetcher builds a Fetcher from cfg. An invalid ProxyURL is a
// configuration error surfaced immediately rather than deferred to the
// first request.
func NewFetcher(cfg Config) (*Fetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "ikuyo/1.0"
	}

	return &Fetcher{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: ua,
	}, nil
}

// BaseURL returns the configured upstream origin, used by the parser to
// resolve relative hrefs.
func (f *Fetcher) BaseURL() string { return f.baseURL }

// Get issues a timed GET against rawURL and returns the decoded body text.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", apperr.API(err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperr.API(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.APIf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.API(err)
	}
	return string(body), nil
}

// HomepageURL returns the homepage listing URL.
func (f *Fetcher) HomepageURL() string {
	return f.baseURL + "/Home"
}

// SeasonURL returns the per-day-of-week season listing URL for a given
// year and season string (one of the four Chinese season names).
func (f *Fetcher) SeasonURL(year int, season string) string {
	return fmt.Sprintf("%s/Home/BangumiCoverFlowByDayOfWeek?year=%d&seasonStr=%s",
		f.baseURL, year, url.QueryEscape(season))
}
