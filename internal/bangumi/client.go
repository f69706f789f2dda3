// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bangumi talks to the external shows-and-episodes metadata API and
// layers a tiered, subscription-aware TTL cache in front of it.
package bangumi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Client is a thin JSON client against the external metadata API. It does
// no caching of its own; that is Service's job.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL   string
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
}

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
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
		ua = "ikuyo-go/1.0"
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  ua,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperr.API(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.API(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.APIf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.API(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.API(fmt.Errorf("decode response from %s: %w", rawURL, err))
	}
	return nil
}

// GetCalendar fetches the weekly broadcast calendar.
func (c *Client) GetCalendar(ctx context.Context) ([]domain.BangumiWeekday, error) {
	var out []domain.BangumiWeekday
	if err := c.getJSON(ctx, c.baseURL+"/calendar", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubject fetches one subject record by its bangumi id.
func (c *Client) GetSubject(ctx context.Context, id int64) (*domain.BangumiSubject, error) {
	var out domain.BangumiSubject
	rawURL := fmt.Sprintf("%s/v0/subjects/%d", c.baseURL, id)
	if err := c.getJSON(ctx, rawURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEpisodes fetches one page of a subject's episodes.
func (c *Client) GetEpisodes(ctx context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error) {
	values := url.Values{}
	values.Set("subject_id", strconv.FormatInt(q.SubjectID, 10))
	if q.EpisodeType != nil {
		values.Set("type", strconv.Itoa(*q.EpisodeType))
	}
	if q.Limit != nil {
		values.Set("limit", strconv.Itoa(*q.Limit))
	}
	if q.Offset != nil {
		values.Set("offset", strconv.Itoa(*q.Offset))
	}

	rawURL := fmt.Sprintf("%s/v0/episodes?%s", c.baseURL, values.Encode())
	var out domain.BangumiEpisodesPage
	if err := c.getJSON(ctx, rawURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
