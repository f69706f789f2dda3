// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// SubjectCacheRow is one row of bangumi_subject_cache. UpdatedAt/TTL are
// epoch-seconds to match the upstream API's cadence, unlike the ms
// timestamps used elsewhere in this system.
type SubjectCacheRow struct {
	ID        int64
	Content   string
	UpdatedAt int64
	TTL       int64
}

// EpisodesCacheRow is one row of bangumi_episodes_cache, keyed by (id, params_hash).
type EpisodesCacheRow struct {
	ID         int64
	ParamsHash string
	Content    string
	UpdatedAt  int64
	TTL        int64
}

// CalendarCacheRow is the singleton bangumi_calendar_cache row (id=1).
type CalendarCacheRow struct {
	Content   string
	UpdatedAt int64
	TTL       int64
}

// Pagination is the common page/total envelope used by list commands.
type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
}
