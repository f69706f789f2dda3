// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package crawler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/crawler"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/mikan"
	"github.com/niloux/ikuyo-go/internal/store"
)

func waitForStatus(t *testing.T, taskStore *store.CrawlerTaskStore, id int64, want domain.CrawlerTaskStatus) *domain.CrawlerTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := taskStore.GetByID(context.Background(), id)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %d never reached status %q", id, want)
	return nil
}

func TestWorkerClaimsAndCompletesPendingTask(t *testing.T) {
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
	w := crawler.NewWorker(taskStore, svc, 2)

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Run(runCtx)
		close(done)
	}()

	waitForStatus(t, taskStore, id, domain.CrawlerTaskStatusCompleted)

	cancelRun()
	w.Shutdown()
	<-done
}

func TestWorkerCancelTaskStopsInFlightCrawl(t *testing.T) {
	block := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/Home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(homepageFixture))
	})
	mux.HandleFunc("/Home/Bangumi/9001", func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	mux.HandleFunc("/Home/Bangumi/9002", func(w http.ResponseWriter, r *http.Request) {
		<-block
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
	w := crawler.NewWorker(taskStore, svc, 2)

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Run(runCtx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := taskStore.GetByID(ctx, id)
		require.NoError(t, err)
		if task.Status == domain.CrawlerTaskStatusRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, w.CancelTask(id))
	close(block)

	waitForStatus(t, taskStore, id, domain.CrawlerTaskStatusCancelled)

	cancelRun()
	w.Shutdown()
	<-done
}

// TestWorkerRecoversRunningTasksOnStartup verifies that a task left in
// running state by a prior crash is marked failed at startup rather than
// left running forever or silently picked back up mid-flight.
func TestWorkerRecoversRunningTasksOnStartup(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	fetcher, err := mikan.NewFetcher(mikan.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	db := openTestDB(t)
	taskStore := store.NewCrawlerTaskStore(db)
	ctx := context.Background()

	staleID, err := taskStore.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1000)
	require.NoError(t, err)
	_, err = taskStore.ClaimOldestPending(ctx, 1001)
	require.NoError(t, err)

	freshID, err := taskStore.Create(ctx, domain.CrawlerTaskTypeManual, domain.CrawlerTaskParameters{Mode: domain.CrawlerModeHomepage}, 1002)
	require.NoError(t, err)

	svc := crawler.NewService(taskStore, db, fetcher, 2)
	w := crawler.NewWorker(taskStore, svc, 2)

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Run(runCtx)
		close(done)
	}()

	waitForStatus(t, taskStore, freshID, domain.CrawlerTaskStatusCompleted)

	cancelRun()
	w.Shutdown()
	<-done

	stale, err := taskStore.GetByID(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlerTaskStatusFailed, stale.Status)
}
