// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package refresh runs the background sweeps that keep the metadata cache
// warm and enqueue the daily homepage harvest, independently of the crawler
// worker: the two share nothing but the store.
package refresh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/niloux/ikuyo-go/internal/domain"
)

const (
	tickInterval         = time.Minute
	defaultSweepFanout   = 8
	harvestWindowEndHour = 23
)

// cacheService is the narrow view of bangumi.Service the sweeps need. Each
// call already applies the normal TTL/staleness check, so sweeping on an
// interval equal to the cache's own TTL is simply a proactive warm rather
// than a distinct code path.
type cacheService interface {
	GetSubject(ctx context.Context, id int64) (*domain.BangumiSubject, error)
	GetEpisodes(ctx context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error)
	GetCalendar(ctx context.Context) ([]domain.BangumiWeekday, error)
}

// subscriptions is the narrow view of the subscription repository needed here.
type subscriptions interface {
	AllBangumiIDs(ctx context.Context) ([]int64, error)
}

// subjectCache is the narrow view of the cache repository needed here.
type subjectCache interface {
	AllSubjectIDs(ctx context.Context) ([]int64, error)
}

// taskRepo is the narrow view of the crawler task repository needed to run
// the idempotent daily harvest check.
type taskRepo interface {
	HasCompletedScheduledHomepageInWindow(ctx context.Context, windowStart, windowEnd int64) (bool, error)
	HasPendingOrRunningScheduledHomepage(ctx context.Context) (bool, error)
	Create(ctx context.Context, taskType domain.CrawlerTaskType, params domain.CrawlerTaskParameters, createdAt int64) (int64, error)
}

// Loop ticks once a minute, running each sweep (subscribed subjects,
// non-subscribed subjects, calendar) on its own configured interval, and
// checking once per day whether a scheduled homepage harvest needs to be
// enqueued.
type Loop struct {
	cache cacheService
	subs  subscriptions
	subj  subjectCache
	tasks taskRepo

	subInterval      int64
	nonSubInterval   int64
	calendarInterval int64
	fanout           int

	nowFunc func() int64

	lastSubSweep      atomic.Int64
	lastNonSubSweep   atomic.Int64
	lastCalendarSweep atomic.Int64
	lastHarvestDate   atomic.Value // string, YYYY-MM-DD

	exitFlag atomic.Bool
}

// NewLoop builds a Loop from cfg's refresh-interval settings.
func NewLoop(cache cacheService, subs subscriptions, subj subjectCache, tasks taskRepo, cfg domain.Config) *Loop {
	fanout := cfg.CacheSweepConcurrency
	if fanout <= 0 {
		fanout = defaultSweepFanout
	}
	l := &Loop{
		cache:            cache,
		subs:             subs,
		subj:             subj,
		tasks:            tasks,
		subInterval:      int64(cfg.BangumiSubRefreshInterval),
		nonSubInterval:   int64(cfg.BangumiNonSubRefreshInterval),
		calendarInterval: int64(cfg.BangumiCalendarRefreshInterval),
		fanout:           fanout,
		nowFunc:          func() int64 { return time.Now().Unix() },
	}
	l.lastHarvestDate.Store("")
	return l
}

func (l *Loop) now() int64 { return l.nowFunc() }

// Run ticks until ctx is cancelled or Shutdown is called. Each tick runs its
// due sweeps synchronously and to completion; ticks that fall due while a
// sweep is still running are dropped by the ticker, so a slow sweep simply
// delays the next check.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	l.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.exitFlag.Load() {
				return
			}
			l.runTick(ctx)
		}
	}
}

// Shutdown stops the loop at its next tick boundary.
func (l *Loop) Shutdown() {
	l.exitFlag.Store(true)
}

func (l *Loop) runTick(ctx context.Context) {
	now := l.now()

	if now-l.lastSubSweep.Load() >= l.subInterval {
		l.lastSubSweep.Store(now)
		l.sweepSubscribed(ctx)
	}
	if now-l.lastNonSubSweep.Load() >= l.nonSubInterval {
		l.lastNonSubSweep.Store(now)
		l.sweepNonSubscribed(ctx)
	}
	if now-l.lastCalendarSweep.Load() >= l.calendarInterval {
		l.lastCalendarSweep.Store(now)
		l.sweepCalendar(ctx)
	}

	l.checkDailyHarvest(ctx)
}

// sweepIDs revalidates subject + default episodes page for each id,
// bounded to l.fanout concurrent upstream requests. A per-id failure is
// logged and does not abort the rest of the sweep.
func (l *Loop) sweepIDs(ctx context.Context, ids []int64) {
	eg, egCtx := errgroup.WithContext(context.Background())
	eg.SetLimit(l.fanout)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			if _, err := l.cache.GetSubject(egCtx, id); err != nil {
				log.Warn().Err(err).Int64("bangumiId", id).Msg("refresh: subject revalidation failed")
			}
			if _, err := l.cache.GetEpisodes(egCtx, domain.EpisodesQuery{SubjectID: id}); err != nil {
				log.Warn().Err(err).Int64("bangumiId", id).Msg("refresh: episodes revalidation failed")
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (l *Loop) sweepSubscribed(ctx context.Context) {
	ids, err := l.subs.AllBangumiIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh: failed to list subscribed ids")
		return
	}
	l.sweepIDs(ctx, ids)
}

func (l *Loop) sweepNonSubscribed(ctx context.Context) {
	subscribed, err := l.subs.AllBangumiIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh: failed to list subscribed ids")
		return
	}
	subscribedSet := make(map[int64]struct{}, len(subscribed))
	for _, id := range subscribed {
		subscribedSet[id] = struct{}{}
	}

	all, err := l.subj.AllSubjectIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh: failed to list cached subject ids")
		return
	}

	var complement []int64
	for _, id := range all {
		if _, ok := subscribedSet[id]; !ok {
			complement = append(complement, id)
		}
	}
	l.sweepIDs(ctx, complement)
}

func (l *Loop) sweepCalendar(ctx context.Context) {
	if _, err := l.cache.GetCalendar(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh: calendar revalidation failed")
	}
}

// checkDailyHarvest enqueues one scheduled homepage crawl per calendar day,
// idempotently across process restarts: it consults the store, not
// in-memory state, to decide whether today already has a completed,
// pending, or running scheduled homepage task, and only caches today's
// date in memory to skip repeat evaluation within the same day.
func (l *Loop) checkDailyHarvest(ctx context.Context) {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	if l.lastHarvestDate.Load().(string) == today {
		return
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), harvestWindowEndHour, 59, 59, 999_000_000, time.UTC)

	completed, err := l.tasks.HasCompletedScheduledHomepageInWindow(ctx, dayStart.UnixMilli(), dayEnd.UnixMilli())
	if err != nil {
		log.Warn().Err(err).Msg("refresh: failed to check completed daily harvest")
		return
	}
	if completed {
		l.lastHarvestDate.Store(today)
		return
	}

	pendingOrRunning, err := l.tasks.HasPendingOrRunningScheduledHomepage(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh: failed to check in-flight daily harvest")
		return
	}
	if pendingOrRunning {
		l.lastHarvestDate.Store(today)
		return
	}

	if _, err := l.tasks.Create(ctx, domain.CrawlerTaskTypeScheduled,
		domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, now.UnixMilli()); err != nil {
		log.Error().Err(err).Msg("refresh: failed to enqueue daily harvest")
		return
	}
	l.lastHarvestDate.Store(today)
}
