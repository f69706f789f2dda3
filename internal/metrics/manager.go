// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics wires crawler throughput, cache hit/miss, and download
// engine state into a prometheus.Registry, which the serve command exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Manager owns the registry and every collector registered on it.
type Manager struct {
	registry *prometheus.Registry
}

// NewManager builds a registry with the Go/process collectors, the
// counter-backed collector for crawler/cache metrics, and a download task
// collector over tasks. tasks may be nil if the download engine hasn't
// started yet; the collector reports no rows in that case.
func NewManager(tasks downloadLister) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(newCounterCollector())
	registry.MustRegister(newDownloadCollector(tasks))

	log.Info().Msg("metrics manager initialized")

	return &Manager{registry: registry}
}

// Registry returns the prometheus.Registry an HTTP handler should serve.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
