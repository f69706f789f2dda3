// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package bangumi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/metrics"
)

// subscriptions is the narrow view of the subscription repository the
// cache service needs, kept separate from the store package to avoid an
// import cycle.
type subscriptions interface {
	IsSubscribed(ctx context.Context, bangumiID int64) (bool, error)
}

// cacheRepo is the narrow view of the cache repository the service needs.
type cacheRepo interface {
	GetSubject(ctx context.Context, bangumiID int64) (*domain.SubjectCacheRow, error)
	UpsertSubject(ctx context.Context, r domain.SubjectCacheRow) error
	SetSubjectTTL(ctx context.Context, bangumiID, ttl int64) error
	AllSubjectIDs(ctx context.Context) ([]int64, error)

	GetEpisodes(ctx context.Context, bangumiID int64, paramsHash string) (*domain.EpisodesCacheRow, error)
	UpsertEpisodes(ctx context.Context, r domain.EpisodesCacheRow) error
	SetEpisodesTTL(ctx context.Context, bangumiID, ttl int64) error
	EpisodesRowsFor(ctx context.Context, bangumiID int64) ([]domain.EpisodesCacheRow, error)

	GetCalendar(ctx context.Context) (*domain.CalendarCacheRow, error)
	UpsertCalendar(ctx context.Context, r domain.CalendarCacheRow) error
}

// Service applies per-table TTL to the metadata client's responses,
// force-refreshes on subscription transitions, and falls back to a stale
// row when the upstream call fails.
type Service struct {
	client *Client
	cache  cacheRepo
	subs   subscriptions

	subTTL      int64
	nonSubTTL   int64
	calendarTTL int64
	nowFunc     func() int64
}

// NewService builds a Service from cfg's TTL settings.
func NewService(client *Client, cache cacheRepo, subs subscriptions, cfg domain.Config) *Service {
	return &Service{
		client:      client,
		cache:       cache,
		subs:        subs,
		subTTL:      int64(cfg.BangumiSubTTL),
		nonSubTTL:   int64(cfg.BangumiNonSubTTL),
		calendarTTL: int64(cfg.BangumiCalendarTTL),
		nowFunc:     func() int64 { return time.Now().Unix() },
	}
}

func (s *Service) now() int64 { return s.nowFunc() }

func (s *Service) ttlFor(ctx context.Context, bangumiID int64) (int64, error) {
	subscribed, err := s.subs.IsSubscribed(ctx, bangumiID)
	if err != nil {
		return 0, err
	}
	if subscribed {
		return s.subTTL, nil
	}
	return s.nonSubTTL, nil
}

// GetSubject returns a subject record, hitting the cache when fresh,
// otherwise the upstream client, falling back to a stale row on failure.
func (s *Service) GetSubject(ctx context.Context, id int64) (*domain.BangumiSubject, error) {
	row, err := s.cache.GetSubject(ctx, id)
	if err != nil {
		return nil, apperr.Cache(err)
	}
	now := s.now()
	if row != nil && now-row.UpdatedAt < row.TTL {
		metrics.RecordCacheHit(metrics.CacheTableSubject)
		var subj domain.BangumiSubject
		if err := json.Unmarshal([]byte(row.Content), &subj); err != nil {
			return nil, apperr.Serialization(err)
		}
		return &subj, nil
	}
	metrics.RecordCacheMiss(metrics.CacheTableSubject)

	subj, fetchErr := s.client.GetSubject(ctx, id)
	if fetchErr != nil {
		if row != nil {
			var stale domain.BangumiSubject
			if err := json.Unmarshal([]byte(row.Content), &stale); err != nil {
				return nil, apperr.Serialization(err)
			}
			return &stale, nil
		}
		return nil, fetchErr
	}

	ttl, err := s.ttlFor(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := json.Marshal(subj)
	if err != nil {
		return nil, apperr.Serialization(err)
	}
	if err := s.cache.UpsertSubject(ctx, domain.SubjectCacheRow{ID: id, Content: string(content), UpdatedAt: now, TTL: ttl}); err != nil {
		return nil, apperr.Cache(err)
	}
	return subj, nil
}

// GetEpisodes returns one episodes page, same cache/fetch/stale-on-error
// semantics as GetSubject, keyed additionally by the query's stable hash.
func (s *Service) GetEpisodes(ctx context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error) {
	hash := ParamsHash(q)
	row, err := s.cache.GetEpisodes(ctx, q.SubjectID, hash)
	if err != nil {
		return nil, apperr.Cache(err)
	}
	now := s.now()
	if row != nil && now-row.UpdatedAt < row.TTL {
		metrics.RecordCacheHit(metrics.CacheTableEpisodes)
		var page domain.BangumiEpisodesPage
		if err := json.Unmarshal([]byte(row.Content), &page); err != nil {
			return nil, apperr.Serialization(err)
		}
		return &page, nil
	}
	metrics.RecordCacheMiss(metrics.CacheTableEpisodes)

	page, fetchErr := s.client.GetEpisodes(ctx, q)
	if fetchErr != nil {
		if row != nil {
			var stale domain.BangumiEpisodesPage
			if err := json.Unmarshal([]byte(row.Content), &stale); err != nil {
				return nil, apperr.Serialization(err)
			}
			return &stale, nil
		}
		return nil, fetchErr
	}

	ttl, err := s.ttlFor(ctx, q.SubjectID)
	if err != nil {
		return nil, err
	}
	content, err := json.Marshal(page)
	if err != nil {
		return nil, apperr.Serialization(err)
	}
	row2 := domain.EpisodesCacheRow{ID: q.SubjectID, ParamsHash: hash, Content: string(content), UpdatedAt: now, TTL: ttl}
	if err := s.cache.UpsertEpisodes(ctx, row2); err != nil {
		return nil, apperr.Cache(err)
	}
	return page, nil
}

// GetCalendar returns the weekly calendar, same cache/fetch/stale-on-error
// semantics, with a fixed TTL since the calendar has no subscription tier.
func (s *Service) GetCalendar(ctx context.Context) ([]domain.BangumiWeekday, error) {
	row, err := s.cache.GetCalendar(ctx)
	if err != nil {
		return nil, apperr.Cache(err)
	}
	now := s.now()
	if row != nil && now-row.UpdatedAt < row.TTL {
		metrics.RecordCacheHit(metrics.CacheTableCalendar)
		var cal []domain.BangumiWeekday
		if err := json.Unmarshal([]byte(row.Content), &cal); err != nil {
			return nil, apperr.Serialization(err)
		}
		return cal, nil
	}
	metrics.RecordCacheMiss(metrics.CacheTableCalendar)

	cal, fetchErr := s.client.GetCalendar(ctx)
	if fetchErr != nil {
		if row != nil {
			var stale []domain.BangumiWeekday
			if err := json.Unmarshal([]byte(row.Content), &stale); err != nil {
				return nil, apperr.Serialization(err)
			}
			return stale, nil
		}
		return nil, fetchErr
	}

	content, err := json.Marshal(cal)
	if err != nil {
		return nil, apperr.Serialization(err)
	}
	if err := s.cache.UpsertCalendar(ctx, domain.CalendarCacheRow{Content: string(content), UpdatedAt: now, TTL: s.calendarTTL}); err != nil {
		return nil, apperr.Cache(err)
	}
	return cal, nil
}

// OnSubscribe forces a fresh subject + default episodes page for bangumiID
// into the cache at the subscribed TTL tier.
func (s *Service) OnSubscribe(ctx context.Context, bangumiID int64) error {
	now := s.now()

	subj, err := s.client.GetSubject(ctx, bangumiID)
	if err != nil {
		return err
	}
	subjContent, err := json.Marshal(subj)
	if err != nil {
		return apperr.Serialization(err)
	}
	if err := s.cache.UpsertSubject(ctx, domain.SubjectCacheRow{
		ID: bangumiID, Content: string(subjContent), UpdatedAt: now, TTL: s.subTTL,
	}); err != nil {
		return apperr.Cache(err)
	}

	q := domain.EpisodesQuery{SubjectID: bangumiID}
	episodes, err := s.client.GetEpisodes(ctx, q)
	if err != nil {
		return err
	}
	epContent, err := json.Marshal(episodes)
	if err != nil {
		return apperr.Serialization(err)
	}
	if err := s.cache.UpsertEpisodes(ctx, domain.EpisodesCacheRow{
		ID: bangumiID, ParamsHash: ParamsHash(q), Content: string(epContent), UpdatedAt: now, TTL: s.subTTL,
	}); err != nil {
		return apperr.Cache(err)
	}

	return nil
}

// OnUnsubscribe relaxes bangumiID's cached subject and episodes rows to the
// non-subscribed TTL tier in place, without an immediate re-fetch.
func (s *Service) OnUnsubscribe(ctx context.Context, bangumiID int64) error {
	if err := s.cache.SetSubjectTTL(ctx, bangumiID, s.nonSubTTL); err != nil {
		return apperr.Cache(err)
	}
	if err := s.cache.SetEpisodesTTL(ctx, bangumiID, s.nonSubTTL); err != nil {
		return apperr.Cache(err)
	}
	return nil
}
