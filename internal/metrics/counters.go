// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import "sync/atomic"

// Package-level counters incremented inline by the packages they describe,
// read back by Collector.Collect. Same shape as the teacher's
// internal/database/metrics.go: a plain atomic counter plus a recording
// function, never a *prometheus.CounterVec threaded through unrelated
// packages.
var (
	crawlerItemsProcessedTotal atomic.Uint64
	crawlerTasksCompletedTotal atomic.Uint64
	crawlerTasksFailedTotal    atomic.Uint64

	cacheSubjectHitsTotal    atomic.Uint64
	cacheSubjectMissesTotal  atomic.Uint64
	cacheEpisodesHitsTotal   atomic.Uint64
	cacheEpisodesMissesTotal atomic.Uint64
	cacheCalendarHitsTotal   atomic.Uint64
	cacheCalendarMissesTotal atomic.Uint64
)

// RecordCrawlerItemProcessed increments the count of detail pages merged
// into the store across every crawl task.
func RecordCrawlerItemProcessed() {
	crawlerItemsProcessedTotal.Add(1)
}

// RecordCrawlerTaskCompleted increments the count of tasks that reached the
// completed terminal state.
func RecordCrawlerTaskCompleted() {
	crawlerTasksCompletedTotal.Add(1)
}

// RecordCrawlerTaskFailed increments the count of tasks that exhausted
// their retries and reached the failed terminal state.
func RecordCrawlerTaskFailed() {
	crawlerTasksFailedTotal.Add(1)
}

// CacheTable names the three metadata cache tables, each tracked
// independently since their TTL tiers and refresh intervals differ.
type CacheTable string

const (
	CacheTableSubject  CacheTable = "subject"
	CacheTableEpisodes CacheTable = "episodes"
	CacheTableCalendar CacheTable = "calendar"
)

// RecordCacheHit increments table's fresh-row-served counter.
func RecordCacheHit(table CacheTable) {
	counterFor(table, true).Add(1)
}

// RecordCacheMiss increments table's fetched-from-upstream counter,
// whether that fetch served a fresh value or fell back to a stale row.
func RecordCacheMiss(table CacheTable) {
	counterFor(table, false).Add(1)
}

func counterFor(table CacheTable, hit bool) *atomic.Uint64 {
	switch table {
	case CacheTableSubject:
		if hit {
			return &cacheSubjectHitsTotal
		}
		return &cacheSubjectMissesTotal
	case CacheTableEpisodes:
		if hit {
			return &cacheEpisodesHitsTotal
		}
		return &cacheEpisodesMissesTotal
	default:
		if hit {
			return &cacheCalendarHitsTotal
		}
		return &cacheCalendarMissesTotal
	}
}
