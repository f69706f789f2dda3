// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package crawler harvests show, subtitle group, and resource rows from the
// release tracker: a list fetch yields detail URLs, a bounded-concurrency
// pipeline fetches and parses each detail page, and the results are merged
// and flushed to the database in batches.
package crawler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/database"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/metrics"
	"github.com/niloux/ikuyo-go/internal/mikan"
	"github.com/niloux/ikuyo-go/internal/store"
)

const (
	defaultConcurrency = 8
	detailFetchTimeout = 30 * time.Second
	flushBatchSize     = 10
)

// taskRepo is the narrow view of the crawler task repository this service
// needs to progress and terminate a task.
type taskRepo interface {
	SetTotalItems(ctx context.Context, id int64, total int64) error
	UpdateProgress(ctx context.Context, id int64, p store.CrawlerProgressUpdate) error
	Complete(ctx context.Context, id int64, completedAt int64) error
}

// listFetcher is the narrow view of mikan.Fetcher this service needs.
type listFetcher interface {
	BaseURL() string
	HomepageURL() string
	SeasonURL(year int, season string) string
	Get(ctx context.Context, rawURL string) (string, error)
}

// Service runs one crawl's list and detail phases against the release
// tracker and persists the results.
type Service struct {
	tasks       taskRepo
	db          *database.DB
	fetcher     listFetcher
	concurrency int
	nowFunc     func() int64
}

// NewService builds a Service. concurrency <= 0 defaults to 8.
func NewService(tasks *store.CrawlerTaskStore, db *database.DB, fetcher *mikan.Fetcher, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		tasks:       tasks,
		db:          db,
		fetcher:     fetcher,
		concurrency: concurrency,
		nowFunc:     func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Service) now() int64 { return s.nowFunc() }

type detailURL struct {
	mikanID int64
	url     string
}

// fetchListURLs runs the list phase for params.Mode, returning the detail
// URLs to crawl. Ids are deduplicated within each list page only, so in year
// mode a show listed in more than one season appears once per season. Any
// list fetch or parse failure here is a hard failure for the whole task.
func (s *Service) fetchListURLs(ctx context.Context, params domain.CrawlerTaskParameters) ([]detailURL, error) {
	var listURLs []string
	switch params.Mode {
	case domain.CrawlerModeHomepage:
		listURLs = []string{s.fetcher.HomepageURL()}
	case domain.CrawlerModeSeason:
		if params.Year == nil || params.Season == nil {
			return nil, apperr.Input("season mode requires both year and season")
		}
		listURLs = []string{s.fetcher.SeasonURL(*params.Year, string(*params.Season))}
	case domain.CrawlerModeYear:
		if params.Year == nil {
			return nil, apperr.Input("year mode requires a year")
		}
		for _, season := range []domain.Season{domain.SeasonSpring, domain.SeasonSummer, domain.SeasonAutumn, domain.SeasonWinter} {
			listURLs = append(listURLs, s.fetcher.SeasonURL(*params.Year, string(season)))
		}
	default:
		return nil, apperr.Input(fmt.Sprintf("unknown crawler mode %q", params.Mode))
	}

	var out []detailURL
	for _, listURL := range listURLs {
		html, err := s.fetcher.Get(ctx, listURL)
		if err != nil {
			return nil, err
		}
		ids, err := mikan.ParseList(html)
		if err != nil {
			return nil, err
		}
		if params.Limit != nil && *params.Limit >= 0 && len(ids) > *params.Limit {
			ids = ids[:*params.Limit]
		}
		for _, id := range ids {
			out = append(out, detailURL{mikanID: id, url: fmt.Sprintf("%s/Home/Bangumi/%d", s.fetcher.BaseURL(), id)})
		}
	}
	return out, nil
}

// mergeBuffers accumulates parsed results across concurrent detail-page
// units, deduplicating by each table's natural key so a batch flush never
// writes the same row twice regardless of arrival order.
type mergeBuffers struct {
	mu sync.Mutex

	animeIDs map[int64]struct{}
	groupIDs map[int64]struct{}
	hashSeen map[string]struct{}

	animes    []*domain.Anime
	groups    []*domain.SubtitleGroup
	resources []*domain.Resource
}

func newMergeBuffers() *mergeBuffers {
	return &mergeBuffers{
		animeIDs: make(map[int64]struct{}),
		groupIDs: make(map[int64]struct{}),
		hashSeen: make(map[string]struct{}),
	}
}

func (b *mergeBuffers) merge(bundle *mikan.AnimeBundle, now int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	anime := bundle.Anime
	anime.CreatedAt = now
	anime.UpdatedAt = now
	if _, dup := b.animeIDs[anime.MikanID]; !dup {
		b.animeIDs[anime.MikanID] = struct{}{}
		b.animes = append(b.animes, &anime)
	}

	for _, g := range bundle.SubtitleGroups {
		g := g
		if _, dup := b.groupIDs[g.ID]; dup {
			continue
		}
		b.groupIDs[g.ID] = struct{}{}
		g.CreatedAt = now
		b.groups = append(b.groups, &g)
	}

	for _, row := range bundle.Resources {
		var hash *string
		if row.MagnetURL != nil {
			hash = mikan.ExtractMagnetHash(*row.MagnetURL)
		}
		if hash != nil {
			if _, dup := b.hashSeen[*hash]; dup {
				continue
			}
			b.hashSeen[*hash] = struct{}{}
		}
		b.resources = append(b.resources, &domain.Resource{
			MikanID:         anime.MikanID,
			SubtitleGroupID: row.SubtitleGroupID,
			EpisodeNumber:   mikan.ParseEpisodeNumber(row.Title),
			Title:           row.Title,
			FileSize:        row.FileSize,
			Resolution:      mikan.ParseResolution(row.Title),
			SubtitleType:    mikan.ParseSubtitleType(row.Title),
			MagnetURL:       row.MagnetURL,
			TorrentURL:      row.TorrentURL,
			MagnetHash:      hash,
			ReleaseDate:     row.ReleaseDate,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
}

// drain takes and clears the current buffer contents, leaving the dedup
// sets intact for the remainder of the task.
func (b *mergeBuffers) drain() ([]*domain.Anime, []*domain.SubtitleGroup, []*domain.Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()

	animes, groups, resources := b.animes, b.groups, b.resources
	b.animes, b.groups, b.resources = nil, nil, nil
	return animes, groups, resources
}

// flush writes everything currently buffered in one transaction, in
// FK-safe order: animes, then subtitle groups, then resources.
func (s *Service) flush(ctx context.Context, buffers *mergeBuffers) error {
	animes, groups, resources := buffers.drain()
	if len(animes) == 0 && len(groups) == 0 && len(resources) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database(err)
	}
	defer tx.Rollback()

	if err := store.InsertManyAnimes(ctx, tx, animes); err != nil {
		return err
	}
	if err := store.InsertManySubtitleGroups(ctx, tx, groups); err != nil {
		return err
	}
	if err := store.InsertManyResources(ctx, tx, resources); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Execute runs one task's list and detail phases once. On success it
// writes the completed terminal state itself and returns nil. On an
// ordinary failure (list fetch, parse, flush) it returns the error without
// touching the task row, leaving the retry/final-failure decision to the
// caller. On cancellation it returns ctx.Err() without touching the task
// row either, leaving the cancelled terminal write to the caller too — the
// buffer accumulated so far is dropped either way, never flushed partway.
// startedAt is the epoch-ms timestamp the caller recorded when it claimed
// the task, reused here so elapsed-time math stays consistent across
// retries of the same task.
func (s *Service) Execute(ctx context.Context, taskID int64, params domain.CrawlerTaskParameters, startedAt int64) error {
	urls, err := s.fetchListURLs(ctx, params)
	if err != nil {
		return err
	}

	total := int64(len(urls))
	if err := s.tasks.SetTotalItems(ctx, taskID, total); err != nil {
		return err
	}
	if total == 0 {
		return s.tasks.Complete(context.Background(), taskID, s.now())
	}

	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	defer cancelPipeline()

	buffers := newMergeBuffers()
	var processed atomic.Int64
	var flushMu sync.Mutex
	var flushErr error

	eg, egCtx := errgroup.WithContext(pipelineCtx)
	eg.SetLimit(s.concurrency)

	for _, du := range urls {
		du := du
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}

			fetchCtx, cancel := context.WithTimeout(egCtx, detailFetchTimeout)
			html, err := s.fetcher.Get(fetchCtx, du.url)
			cancel()
			if err != nil {
				log.Warn().Err(err).Int64("mikanId", du.mikanID).Msg("crawler: detail fetch failed, skipping")
				return nil
			}
			bundle, err := mikan.ParseDetail(html, du.mikanID, s.fetcher.BaseURL())
			if err != nil {
				log.Warn().Err(err).Int64("mikanId", du.mikanID).Msg("crawler: detail parse failed, skipping")
				return nil
			}
			buffers.merge(bundle, s.now())
			metrics.RecordCrawlerItemProcessed()

			n := processed.Add(1)
			elapsedSec := math.Max(1, float64(s.now()-startedAt)/1000)
			speed := float64(n) / elapsedSec
			remaining := float64(total-n) / math.Max(speed, 1e-9)
			if err := s.tasks.UpdateProgress(egCtx, taskID, store.CrawlerProgressUpdate{
				ProcessedItems: n, Percentage: float64(n) / float64(total) * 100,
				ProcessingSpeed: speed, EstimatedRemaining: remaining,
			}); err != nil {
				log.Warn().Err(err).Int64("taskId", taskID).Msg("crawler: progress update failed")
			}

			if n%flushBatchSize == 0 {
				if err := s.flush(egCtx, buffers); err != nil {
					flushMu.Lock()
					if flushErr == nil {
						flushErr = err
					}
					flushMu.Unlock()
					cancelPipeline()
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	flushMu.Lock()
	finalErr := flushErr
	flushMu.Unlock()
	if finalErr != nil {
		return finalErr
	}

	if ctx.Err() != nil {
		// Buffer is deliberately dropped, not flushed, on cancellation.
		return ctx.Err()
	}

	if err := s.flush(context.Background(), buffers); err != nil {
		return err
	}
	return s.tasks.Complete(context.Background(), taskID, s.now())
}
