// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/niloux/ikuyo-go/internal/app"
	"github.com/niloux/ikuyo-go/internal/bangumi"
	"github.com/niloux/ikuyo-go/internal/config"
	"github.com/niloux/ikuyo-go/internal/crawler"
	"github.com/niloux/ikuyo-go/internal/database"
	"github.com/niloux/ikuyo-go/internal/download"
	"github.com/niloux/ikuyo-go/internal/events"
	"github.com/niloux/ikuyo-go/internal/metrics"
	"github.com/niloux/ikuyo-go/internal/mikan"
	"github.com/niloux/ikuyo-go/internal/refresh"
	"github.com/niloux/ikuyo-go/internal/store"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawler, cache refresh loop, and download engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires every component (C1-C12) together and blocks until the
// process receives SIGINT/SIGTERM, then shuts each one down in reverse
// dependency order.
func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(config.ResolveSQLitePath(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	animes := store.NewAnimeStore(db)
	resources := store.NewResourceStore(db)
	groups := store.NewSubtitleGroupStore(db)
	subs := store.NewSubscriptionStore(db)
	cacheRows := store.NewCacheStore(db)
	tasks := store.NewCrawlerTaskStore(db)
	downloadTasks := store.NewDownloadTaskStore(db)

	fetcher, err := mikan.NewFetcher(mikan.Config{
		BaseURL:   cfg.MikanBaseURL,
		ProxyURL:  cfg.HTTPProxyURL,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("build mikan fetcher: %w", err)
	}

	bangumiClient, err := bangumi.NewClient(bangumi.ClientConfig{
		BaseURL:   cfg.BangumiAPI,
		ProxyURL:  cfg.HTTPProxyURL,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("build bangumi client: %w", err)
	}
	catalog := bangumi.NewService(bangumiClient, cacheRows, subs, cfg)

	crawlerSvc := crawler.NewService(tasks, db, fetcher, cfg.CrawlerDetailConcurrency)
	worker := crawler.NewWorker(tasks, crawlerSvc, cfg.WorkerPermits)

	refreshLoop := refresh.NewLoop(catalog, subs, cacheRows, tasks, cfg)

	bus := events.NewBus()
	downloadDir := config.ResolveDownloadDir(cfg)
	engine, err := download.NewEngine(download.Config{
		DataDir:           downloadDir,
		ReconcileFanout:   cfg.DownloadReconcileConcurrency,
		ProgressPublisher: bus,
	}, downloadTasks)
	if err != nil {
		return fmt.Errorf("build download engine: %w", err)
	}
	defer engine.Close()

	if err := engine.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("serve: failed to restore in-flight downloads")
	}

	// app.New proves every component constructed above composes into the
	// command surface a desktop-shell host process embeds; that host is
	// out of scope here, so the facade has no in-process caller.
	_ = app.New(catalog, animes, resources, groups, subs, tasks, worker, engine, downloadDir)

	manager := metrics.NewManager(engine)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go worker.Run(runCtx)
	go refreshLoop.Run(runCtx)
	go engine.RunReconciliation(runCtx)

	httpServer := newMetricsServer(cfg.Host, cfg.Port, manager)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("serve: metrics server failed")
		}
	}()

	log.Info().Str("addr", httpServer.Addr).Msg("ikuyod serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("serve: shutdown signal received")

	cancel()
	worker.Shutdown()
	bus.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("serve: metrics server shutdown error")
	}

	return nil
}

// newMetricsServer exposes the prometheus registry and a liveness probe.
// This is the only HTTP surface this daemon owns; every other operation is
// reached through internal/app.Facade by an embedding host process.
func newMetricsServer(host string, port int, manager *metrics.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(manager.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
