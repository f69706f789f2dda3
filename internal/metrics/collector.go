// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import "github.com/prometheus/client_golang/prometheus"

// counterCollector exposes the package-level atomic counters as prometheus
// counters. Grounded on the teacher's internal/database.MetricsCollector:
// a Describe/Collect pair reading plain atomic counters at scrape time
// instead of threading a *prometheus.CounterVec through every package that
// increments one.
type counterCollector struct {
	crawlerItemsProcessedDesc *prometheus.Desc
	crawlerTasksCompletedDesc *prometheus.Desc
	crawlerTasksFailedDesc    *prometheus.Desc
	cacheHitsDesc             *prometheus.Desc
	cacheMissesDesc           *prometheus.Desc
}

func newCounterCollector() *counterCollector {
	return &counterCollector{
		crawlerItemsProcessedDesc: prometheus.NewDesc(
			"ikuyo_crawler_items_processed_total",
			"Total number of detail pages merged into the store across all crawl tasks",
			nil, nil,
		),
		crawlerTasksCompletedDesc: prometheus.NewDesc(
			"ikuyo_crawler_tasks_completed_total",
			"Total number of crawl tasks that reached the completed state",
			nil, nil,
		),
		crawlerTasksFailedDesc: prometheus.NewDesc(
			"ikuyo_crawler_tasks_failed_total",
			"Total number of crawl tasks that reached the failed state",
			nil, nil,
		),
		cacheHitsDesc: prometheus.NewDesc(
			"ikuyo_cache_hits_total",
			"Total number of cache reads served from a fresh row, by table",
			[]string{"table"}, nil,
		),
		cacheMissesDesc: prometheus.NewDesc(
			"ikuyo_cache_misses_total",
			"Total number of cache reads that fetched from upstream, by table",
			[]string{"table"}, nil,
		),
	}
}

func (c *counterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.crawlerItemsProcessedDesc
	ch <- c.crawlerTasksCompletedDesc
	ch <- c.crawlerTasksFailedDesc
	ch <- c.cacheHitsDesc
	ch <- c.cacheMissesDesc
}

func (c *counterCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.crawlerItemsProcessedDesc, prometheus.CounterValue, float64(crawlerItemsProcessedTotal.Load()))
	ch <- prometheus.MustNewConstMetric(c.crawlerTasksCompletedDesc, prometheus.CounterValue, float64(crawlerTasksCompletedTotal.Load()))
	ch <- prometheus.MustNewConstMetric(c.crawlerTasksFailedDesc, prometheus.CounterValue, float64(crawlerTasksFailedTotal.Load()))

	ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(cacheSubjectHitsTotal.Load()), string(CacheTableSubject))
	ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(cacheEpisodesHitsTotal.Load()), string(CacheTableEpisodes))
	ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(cacheCalendarHitsTotal.Load()), string(CacheTableCalendar))

	ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(cacheSubjectMissesTotal.Load()), string(CacheTableSubject))
	ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(cacheEpisodesMissesTotal.Load()), string(CacheTableEpisodes))
	ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(cacheCalendarMissesTotal.Load()), string(CacheTableCalendar))
}
