// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mikan

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	episodeNumberRe = regexp.MustCompile(`(?i)\[(\d{2,3})\]|\[E(\d{2,3})\]`)
	resolutionRe    = regexp.MustCompile(`(?i)(\d{3,4}p)`)
	subtitleTypeRe  = regexp.MustCompile(`(?i)(简繁|简日|繁日|简体|繁体|BIG5|GB)`)
	magnetHashRe    = regexp.MustCompile(`xt=urn:btih:([a-fA-F0-9]{40})`)
)

const releaseDateLayout = "2006/01/02 15:04"

// ParseEpisodeNumber extracts an episode number from a resource title, e.g.
// "[12]" or "[E12]". Returns nil when no match is found.
func ParseEpisodeNumber(title string) *int32 {
	m := episodeNumberRe.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return nil
	}
	v := int32(n)
	return &v
}

// ParseResolution extracts a lower-cased resolution token (e.g. "1080p")
// from a resource title.
func ParseResolution(title string) *string {
	m := resolutionRe.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	v := strings.ToLower(m[1])
	return &v
}

// ParseSubtitleType extracts a normalized subtitle-type token from a
// resource title.
func ParseSubtitleType(title string) *string {
	m := subtitleTypeRe.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	v := m[1]
	return &v
}

// ParseDateTimeToEpochMillis parses an upstream "%Y/%m/%d %H:%M" datetime
// string (implicitly UTC) into epoch-milliseconds. Returns nil on a
// malformed string.
func ParseDateTimeToEpochMillis(s string) *int64 {
	t, err := time.Parse(releaseDateLayout, s)
	if err != nil {
		return nil
	}
	ms := t.UTC().UnixMilli()
	return &ms
}

// ExtractMagnetHash pulls the lower-cased 40-char BitTorrent info-hash out
// of a magnet URI's xt parameter. Returns nil when absent.
func ExtractMagnetHash(magnetURL string) *string {
	m := magnetHashRe.FindStringSubmatch(magnetURL)
	if m == nil {
		return nil
	}
	v := strings.ToLower(m[1])
	return &v
}
