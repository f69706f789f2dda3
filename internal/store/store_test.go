// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/database"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/store"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAnimeCreateGetUpdateDelete(t *testing.T) {
	db := openTestDB(t)
	s := store.NewAnimeStore(db)
	ctx := context.Background()

	a := &domain.Anime{MikanID: 1, Title: "Test Show", Status: domain.AnimeStatusAiring, CreatedAt: 100, UpdatedAt: 100}
	require.NoError(t, s.Create(ctx, a))

	got, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Test Show", got.Title)
	assert.Nil(t, got.OriginalTitle)

	got.Title = "Renamed Show"
	got.UpdatedAt = 200
	require.NoError(t, s.Update(ctx, got))

	got2, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Show", got2.Title)

	require.NoError(t, s.Delete(ctx, 1))
	_, err = s.GetByID(ctx, 1)
	assert.Error(t, err)
}

func TestInsertManyAnimesUpsertsOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	animes := []*domain.Anime{
		{MikanID: 10, Title: "First", CreatedAt: 1, UpdatedAt: 1},
		{MikanID: 11, Title: "Second", CreatedAt: 1, UpdatedAt: 1},
	}
	require.NoError(t, store.InsertManyAnimes(ctx, tx, animes))
	require.NoError(t, tx.Commit())

	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	animes2 := []*domain.Anime{
		{MikanID: 10, Title: "First Updated", CreatedAt: 1, UpdatedAt: 2},
	}
	require.NoError(t, store.InsertManyAnimes(ctx, tx2, animes2))
	require.NoError(t, tx2.Commit())

	s := store.NewAnimeStore(db)
	got, err := s.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "First Updated", got.Title)
	assert.Equal(t, int64(1), got.CreatedAt, "created_at must not be overwritten on conflict")

	still, err := s.GetByID(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "Second", still.Title)
}

func TestResourceFilterAndCountByEpisode(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	animeStore := store.NewAnimeStore(db)
	require.NoError(t, animeStore.Create(ctx, &domain.Anime{MikanID: 1, Title: "Show", CreatedAt: 1, UpdatedAt: 1}))
	groupStore := store.NewSubtitleGroupStore(db)
	require.NoError(t, groupStore.Create(ctx, &domain.SubtitleGroup{ID: 1, Name: "Group", CreatedAt: 1}))

	resStore := store.NewResourceStore(db)
	res1080 := "1080p"
	ep1 := int32(1)
	ep2 := int32(2)
	hash1 := "a1111111111111111111111111111111111111a"
	hash2 := "a2222222222222222222222222222222222222a"
	hash3 := "a3333333333333333333333333333333333333a"

	_, err := resStore.Create(ctx, &domain.Resource{
		MikanID: 1, SubtitleGroupID: 1, EpisodeNumber: &ep1, Title: "ep1 1080p",
		Resolution: &res1080, MagnetHash: &hash1, ReleaseDate: ptrInt64(300), CreatedAt: 1, UpdatedAt: 1,
	})
	require.NoError(t, err)
	_, err = resStore.Create(ctx, &domain.Resource{
		MikanID: 1, SubtitleGroupID: 1, EpisodeNumber: &ep1, Title: "ep1 720p",
		MagnetHash: &hash2, ReleaseDate: ptrInt64(200), CreatedAt: 1, UpdatedAt: 1,
	})
	require.NoError(t, err)
	_, err = resStore.Create(ctx, &domain.Resource{
		MikanID: 1, SubtitleGroupID: 1, EpisodeNumber: &ep2, Title: "ep2 1080p",
		Resolution: &res1080, MagnetHash: &hash3, ReleaseDate: ptrInt64(100), CreatedAt: 1, UpdatedAt: 1,
	})
	require.NoError(t, err)

	filtered, err := resStore.Filter(ctx, store.ResourceFilter{MikanID: 1, Resolution: &res1080}, 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "ep1 1080p", filtered[0].Title, "newest release_date first")

	counts, err := resStore.CountByEpisode(ctx, 1)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, int32(1), counts[0].EpisodeNumber)
	assert.Equal(t, int64(2), counts[0].Count)
	assert.Equal(t, int32(2), counts[1].EpisodeNumber)
	assert.Equal(t, int64(1), counts[1].Count)
}

func ptrInt64(v int64) *int64 { return &v }

func TestInsertManyResourcesUpsertsByMagnetHash(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	animeStore := store.NewAnimeStore(db)
	require.NoError(t, animeStore.Create(ctx, &domain.Anime{MikanID: 1, Title: "Show", CreatedAt: 1, UpdatedAt: 1}))
	groupStore := store.NewSubtitleGroupStore(db)
	require.NoError(t, groupStore.Create(ctx, &domain.SubtitleGroup{ID: 1, Name: "Group", CreatedAt: 1}))

	hash := "b1111111111111111111111111111111111111b"
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertManyResources(ctx, tx, []*domain.Resource{
		{MikanID: 1, SubtitleGroupID: 1, Title: "v1", MagnetHash: &hash, CreatedAt: 1, UpdatedAt: 1},
	}))
	require.NoError(t, tx.Commit())

	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertManyResources(ctx, tx2, []*domain.Resource{
		{MikanID: 1, SubtitleGroupID: 1, Title: "v2", MagnetHash: &hash, CreatedAt: 1, UpdatedAt: 2},
	}))
	require.NoError(t, tx2.Commit())

	resStore := store.NewResourceStore(db)
	all, err := resStore.Filter(ctx, store.ResourceFilter{MikanID: 1}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1, "second upsert must update the existing row, not insert a new one")
	assert.Equal(t, "v2", all[0].Title)
}

func TestCrawlerTaskClaimAndLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewCrawlerTaskStore(db)

	id, err := s.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)

	task, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusPending, task.Status)
	assert.Equal(t, 0.0, task.Percentage)
	assert.Equal(t, int64(0), task.TotalItems)

	claimed, err := s.ClaimOldestPending(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, id, claimed)

	none, err := s.ClaimOldestPending(ctx, 2001)
	require.NoError(t, err)
	assert.Equal(t, int64(0), none, "no pending task left to claim")

	require.NoError(t, s.SetTotalItems(ctx, id, 5))
	require.NoError(t, s.UpdateProgress(ctx, id, store.CrawlerProgressUpdate{
		ProcessedItems: 3, Percentage: 60, ProcessingSpeed: 1.5, EstimatedRemaining: 2,
	}))
	require.NoError(t, s.Complete(ctx, id, 3000))

	final, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusCompleted, final.Status)
	assert.Equal(t, 100.0, final.Percentage)
	require.NotNil(t, final.EstimatedRemaining)
	assert.Equal(t, 0.0, *final.EstimatedRemaining)
}

func TestMarkAllRunningAsFailed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewCrawlerTaskStore(db)

	id, err := s.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)
	_, err = s.ClaimOldestPending(ctx, 1001)
	require.NoError(t, err)

	count, err := s.MarkAllRunningAsFailed(ctx, 2000, "crash recovery")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	task, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, "crash recovery", *task.ErrorMessage)
}

func TestSubscriptionConflictOnDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewSubscriptionStore(db)

	_, err := s.Create(ctx, &domain.UserSubscription{UserID: "u1", BangumiID: 42, SubscribedAt: 1})
	require.NoError(t, err)

	_, err = s.Create(ctx, &domain.UserSubscription{UserID: "u1", BangumiID: 42, SubscribedAt: 2})
	require.Error(t, err)
}

func TestSubscriptionListWithSortSearchPage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewSubscriptionStore(db)

	nameA, nameB := "Alpha Show", "Beta Show"
	ratingA, ratingB := 8.5, 9.2
	_, err := s.Create(ctx, &domain.UserSubscription{UserID: "u1", BangumiID: 1, SubscribedAt: 1, AnimeNameCN: &nameA, AnimeRating: &ratingA})
	require.NoError(t, err)
	_, err = s.Create(ctx, &domain.UserSubscription{UserID: "u1", BangumiID: 2, SubscribedAt: 2, AnimeNameCN: &nameB, AnimeRating: &ratingB})
	require.NoError(t, err)

	rows, total, err := s.ListWithSortSearchPage(ctx, "u1", domain.SubscriptionSortRating, domain.SubscriptionOrderDesc, nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].BangumiID, "higher rating first under desc")

	search := "alpha"
	rows2, total2, err := s.ListWithSortSearchPage(ctx, "u1", domain.SubscriptionSortDefault, domain.SubscriptionOrderAsc, &search, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total2)
	require.Len(t, rows2, 1)
	assert.Equal(t, int64(1), rows2[0].BangumiID)
}

func TestCacheStoreSubjectUpsertAndTTL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewCacheStore(db)

	require.NoError(t, s.UpsertSubject(ctx, domain.SubjectCacheRow{ID: 1, Content: `{"id":1}`, UpdatedAt: 100, TTL: 3600}))
	row, err := s.GetSubject(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(3600), row.TTL)

	require.NoError(t, s.SetSubjectTTL(ctx, 1, 86400))
	row2, err := s.GetSubject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(86400), row2.TTL)
	assert.Equal(t, `{"id":1}`, row2.Content, "SetSubjectTTL must not touch content")
}

func TestDownloadTaskListExcludesDeleted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := store.NewDownloadTaskStore(db)

	require.NoError(t, s.Create(ctx, &domain.DownloadTask{
		ID: 1, MagnetURL: "magnet:?xt=urn:btih:abc", Title: "t1", Status: domain.DownloadStatusDownloading,
		Name: "n1", NameCN: "n1cn", Cover: "c1", CreatedAt: 1, UpdatedAt: 1,
	}))
	require.NoError(t, s.Create(ctx, &domain.DownloadTask{
		ID: 2, MagnetURL: "magnet:?xt=urn:btih:def", Title: "t2", Status: domain.DownloadStatusDeleted,
		Name: "n2", NameCN: "n2cn", Cover: "c2", CreatedAt: 1, UpdatedAt: 1,
	}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
}
