// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/crawler"
	"github.com/niloux/ikuyo-go/internal/database"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/mikan"
	"github.com/niloux/ikuyo-go/internal/store"
)

const homepageFixture = `
<html><body>
<a href="/Home/Bangumi/9001">Show A</a>
<a href="/Home/Bangumi/9002">Show B</a>
</body></html>
`

func detailFixture(id int, title, hash string) string {
	return fmt.Sprintf(`
<html><head><title>Mikan Project - %s</title></head>
<body>
<p class="bangumi-title">%s</p>
<div class="subgroup-text" id="701"><a>Fixture Subs</a></div>
<table><tbody><tr>
<td><a class="magnet-link-wrap">[Fixture Subs][01][720p]</a>
<a class="js-magnet" data-clipboard-text="magnet:?xt=urn:btih:%s&dn=ep1"></a></td>
<td>300MB</td>
<td>2024/01/15 23:30</td>
<td><a href="/Downloads/torrent/%d">torrent</a></td>
</tr></tbody></table>
</body></html>
`, title, title, hash, id)
}

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(homepageFixture))
	})
	mux.HandleFunc("/Home/Bangumi/9001", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailFixture(9001, "Show A", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")))
	})
	mux.HandleFunc("/Home/Bangumi/9002", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailFixture(9002, "Show B", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")))
	})
	return httptest.NewServer(mux)
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExecuteHomepageCrawlPersistsEverything(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	fetcher, err := mikan.NewFetcher(mikan.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	db := openTestDB(t)
	taskStore := store.NewCrawlerTaskStore(db)
	ctx := context.Background()

	id, err := taskStore.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)

	svc := crawler.NewService(taskStore, db, fetcher, 2)
	require.NoError(t, svc.Execute(ctx, id, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000))

	task, err := taskStore.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusCompleted, task.Status)
	assert.Equal(t, 100.0, task.Percentage)
	assert.Equal(t, int64(2), task.TotalItems)
	assert.Equal(t, int64(2), task.ProcessedItems)

	animeStore := store.NewAnimeStore(db)
	a1, err := animeStore.GetByID(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, "Show A", a1.Title)

	resourceStore := store.NewResourceStore(db)
	resources, err := resourceStore.Filter(ctx, store.ResourceFilter{MikanID: 9001}, 0, 0)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, int64(701), resources[0].SubtitleGroupID)
	require.NotNil(t, resources[0].MagnetHash)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", *resources[0].MagnetHash)
}

func TestExecuteEmptyListingCompletesImmediately(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no shows here</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := mikan.NewFetcher(mikan.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	db := openTestDB(t)
	taskStore := store.NewCrawlerTaskStore(db)
	ctx := context.Background()

	id, err := taskStore.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)

	svc := crawler.NewService(taskStore, db, fetcher, 2)
	require.NoError(t, svc.Execute(ctx, id, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000))

	task, err := taskStore.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusCompleted, task.Status)
	assert.Equal(t, int64(0), task.TotalItems)
}

func TestExecuteSeasonModeRequiresYearAndSeason(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	fetcher, err := mikan.NewFetcher(mikan.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	db := openTestDB(t)
	taskStore := store.NewCrawlerTaskStore(db)
	ctx := context.Background()
	id, err := taskStore.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeSeason}, 1000)
	require.NoError(t, err)

	svc := crawler.NewService(taskStore, db, fetcher, 2)
	err = svc.Execute(ctx, id, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeSeason}, 1000)
	assert.Error(t, err)
}

func TestExecuteCancellationDropsUnflushedBuffer(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(homepageFixture))
	})
	mux.HandleFunc("/Home/Bangumi/9001", func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte(detailFixture(9001, "Show A", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")))
	})
	mux.HandleFunc("/Home/Bangumi/9002", func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte(detailFixture(9002, "Show B", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher, err := mikan.NewFetcher(mikan.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	db := openTestDB(t)
	taskStore := store.NewCrawlerTaskStore(db)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := taskStore.Create(context.Background(), domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)

	svc := crawler.NewService(taskStore, db, fetcher, 2)
	go func() {
		cancel()
		close(block)
	}()

	err = svc.Execute(ctx, id, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	assert.Error(t, err)

	animeStore := store.NewAnimeStore(db)
	_, getErr := animeStore.GetByID(context.Background(), 9001)
	assert.Error(t, getErr, "cancelled crawl must not have flushed its buffer")
}
