// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package refresh

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/domain"
)

type fakeCacheService struct {
	subjectCalls  atomic.Int64
	episodeCalls  atomic.Int64
	calendarCalls atomic.Int64
	failSubject   map[int64]bool
}

func (f *fakeCacheService) GetSubject(_ context.Context, id int64) (*domain.BangumiSubject, error) {
	f.subjectCalls.Add(1)
	if f.failSubject[id] {
		return nil, assert.AnError
	}
	return &domain.BangumiSubject{ID: id}, nil
}

func (f *fakeCacheService) GetEpisodes(_ context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error) {
	f.episodeCalls.Add(1)
	return &domain.BangumiEpisodesPage{}, nil
}

func (f *fakeCacheService) GetCalendar(_ context.Context) ([]domain.BangumiWeekday, error) {
	f.calendarCalls.Add(1)
	return nil, nil
}

type fakeSubscriptions struct {
	ids []int64
}

func (f *fakeSubscriptions) AllBangumiIDs(_ context.Context) ([]int64, error) {
	return f.ids, nil
}

type fakeSubjectCache struct {
	ids []int64
}

func (f *fakeSubjectCache) AllSubjectIDs(_ context.Context) ([]int64, error) {
	return f.ids, nil
}

type fakeTaskRepo struct {
	completed        bool
	pendingOrRunning bool
	created          int
}

func (f *fakeTaskRepo) HasCompletedScheduledHomepageInWindow(_ context.Context, _, _ int64) (bool, error) {
	return f.completed, nil
}

func (f *fakeTaskRepo) HasPendingOrRunningScheduledHomepage(_ context.Context) (bool, error) {
	return f.pendingOrRunning, nil
}

func (f *fakeTaskRepo) Create(_ context.Context, _ domain.CrawlerTaskType, _ domain.CrawlerTaskParameters, _ int64) (int64, error) {
	f.created++
	return int64(f.created), nil
}

func newTestLoop(cache *fakeCacheService, subs *fakeSubscriptions, subj *fakeSubjectCache, tasks *fakeTaskRepo) *Loop {
	cfg := domain.Config{
		BangumiSubRefreshInterval:      3600,
		BangumiNonSubRefreshInterval:   43200,
		BangumiCalendarRefreshInterval: 86400,
		CacheSweepConcurrency:          8,
	}
	return NewLoop(cache, subs, subj, tasks, cfg)
}

func TestRunTickSweepsSubscribedAndCalendarOnFirstTick(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{ids: []int64{1, 2, 3}}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: true}

	l := newTestLoop(cache, subs, subj, tasks)
	l.runTick(context.Background())

	assert.Equal(t, int64(3), cache.subjectCalls.Load())
	assert.Equal(t, int64(3), cache.episodeCalls.Load())
	assert.Equal(t, int64(1), cache.calendarCalls.Load())
}

func TestRunTickDoesNotResweepBeforeIntervalElapses(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{ids: []int64{1}}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: true}

	l := newTestLoop(cache, subs, subj, tasks)
	l.nowFunc = func() int64 { return 1_000_000 }

	l.runTick(context.Background())
	require.Equal(t, int64(1), cache.subjectCalls.Load())

	l.runTick(context.Background())
	assert.Equal(t, int64(1), cache.subjectCalls.Load(), "second tick within the same interval must not resweep")
}

func TestSweepNonSubscribedOnlyVisitsComplementOfSubscribed(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{ids: []int64{1}}
	subj := &fakeSubjectCache{ids: []int64{1, 2, 3}}
	tasks := &fakeTaskRepo{completed: true}

	l := newTestLoop(cache, subs, subj, tasks)
	l.sweepNonSubscribed(context.Background())

	assert.Equal(t, int64(2), cache.subjectCalls.Load(), "should only revalidate ids 2 and 3, not subscribed id 1")
}

func TestCheckDailyHarvestEnqueuesWhenNoneCompletedOrInFlight(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: false, pendingOrRunning: false}

	l := newTestLoop(cache, subs, subj, tasks)
	l.checkDailyHarvest(context.Background())

	assert.Equal(t, 1, tasks.created)
}

func TestCheckDailyHarvestSkipsWhenAlreadyCompleted(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: true}

	l := newTestLoop(cache, subs, subj, tasks)
	l.checkDailyHarvest(context.Background())

	assert.Equal(t, 0, tasks.created)
}

func TestCheckDailyHarvestSkipsWhenPendingOrRunning(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: false, pendingOrRunning: true}

	l := newTestLoop(cache, subs, subj, tasks)
	l.checkDailyHarvest(context.Background())

	assert.Equal(t, 0, tasks.created)
}

func TestCheckDailyHarvestDoesNotReevaluateSameDayTwice(t *testing.T) {
	cache := &fakeCacheService{}
	subs := &fakeSubscriptions{}
	subj := &fakeSubjectCache{}
	tasks := &fakeTaskRepo{completed: false, pendingOrRunning: false}

	l := newTestLoop(cache, subs, subj, tasks)
	l.checkDailyHarvest(context.Background())
	require.Equal(t, 1, tasks.created)

	tasks.pendingOrRunning = false
	tasks.completed = false
	l.checkDailyHarvest(context.Background())
	assert.Equal(t, 1, tasks.created, "same-day re-check must be skipped via the cached date")
}
