// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/niloux/ikuyo-go/internal/domain"
)

const downloadCollectTimeout = 5 * time.Second

// downloadLister is the narrow view of download.Engine this collector
// needs; kept separate from the store/download packages to avoid an
// import cycle.
type downloadLister interface {
	List(ctx context.Context) ([]*domain.DownloadTask, error)
}

// downloadCollector reports the live download_tasks table as a gauge per
// status, queried fresh on every scrape. Grounded directly on the
// teacher's TorrentCollector: a pull-based prometheus.Collector over a
// live session/store rather than counters pushed inline.
type downloadCollector struct {
	tasks downloadLister

	tasksByStatusDesc *prometheus.Desc
}

func newDownloadCollector(tasks downloadLister) *downloadCollector {
	return &downloadCollector{
		tasks: tasks,
		tasksByStatusDesc: prometheus.NewDesc(
			"ikuyo_download_tasks",
			"Number of download tasks by status",
			[]string{"status"},
			nil,
		),
	}
}

func (c *downloadCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksByStatusDesc
}

func (c *downloadCollector) Collect(ch chan<- prometheus.Metric) {
	if c.tasks == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadCollectTimeout)
	defer cancel()

	rows, err := c.tasks.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("metrics: failed to list download tasks for collection")
		return
	}

	counts := make(map[domain.DownloadStatus]int)
	for _, row := range rows {
		counts[row.Status]++
	}

	for _, status := range []domain.DownloadStatus{
		domain.DownloadStatusPending,
		domain.DownloadStatusDownloading,
		domain.DownloadStatusPaused,
		domain.DownloadStatusCompleted,
		domain.DownloadStatusFailed,
	} {
		ch <- prometheus.MustNewConstMetric(c.tasksByStatusDesc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
