// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/metrics"
	"github.com/niloux/ikuyo-go/internal/store"
)

const (
	defaultPermits    = 2
	defaultRetryCount = 3
	retryDelay        = time.Second
	idlePoll          = 5 * time.Second
)

// executor is the narrow view of Service the worker drives.
type executor interface {
	Execute(ctx context.Context, taskID int64, params domain.CrawlerTaskParameters, startedAt int64) error
}

// workerTaskRepo is the narrow view of the crawler task repository the
// worker needs beyond what Service already uses.
type workerTaskRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.CrawlerTask, error)
	ClaimOldestPending(ctx context.Context, now int64) (int64, error)
	Cancel(ctx context.Context, id int64, completedAt int64) error
	Fail(ctx context.Context, id int64, completedAt int64, msg string) error
	MarkAllRunningAsFailed(ctx context.Context, completedAt int64, msg string) (int64, error)
}

// Worker claims pending tasks one at a time up to a permit limit, runs each
// through Service.Execute with a bounded retry budget, and tracks a
// cancellation token per in-flight task so CancelTask can interrupt it
// (and every retry of it) at any suspension point.
type Worker struct {
	tasks      workerTaskRepo
	exec       executor
	permits    chan struct{}
	retryCount int
	nowFunc    func() int64

	notify   chan struct{}
	shutdown chan struct{}

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc

	wg        sync.WaitGroup
	exitFlag  atomic.Bool
	closeOnce sync.Once
}

// NewWorker builds a Worker. permitCount <= 0 defaults to 2.
func NewWorker(tasks *store.CrawlerTaskStore, exec *Service, permitCount int) *Worker {
	if permitCount <= 0 {
		permitCount = defaultPermits
	}
	return &Worker{
		tasks:      tasks,
		exec:       exec,
		permits:    make(chan struct{}, permitCount),
		retryCount: defaultRetryCount,
		nowFunc:    func() int64 { return time.Now().UnixMilli() },
		notify:     make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		cancels:    make(map[int64]context.CancelFunc),
	}
}

func (w *Worker) now() int64 { return w.nowFunc() }

// Wake nudges the claim loop to check for pending tasks immediately,
// rather than waiting out the idle poll interval. Non-blocking.
func (w *Worker) Wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run claims and executes tasks until ctx is cancelled. On cancellation it
// stops claiming new tasks but waits for in-flight units to run to
// completion (or their own cooperative cancellation) before returning, so
// callers can checkpoint the database safely right after Run returns.
// Any task left running from a prior crash is recovered first.
func (w *Worker) Run(ctx context.Context) {
	if _, err := w.tasks.MarkAllRunningAsFailed(ctx, w.now(), "process restarted while task was running"); err != nil {
		log.Warn().Err(err).Msg("crawler worker: failed to recover stale running tasks")
	}

	for {
		if ctx.Err() != nil || w.exitFlag.Load() {
			w.wg.Wait()
			return
		}

		select {
		case w.permits <- struct{}{}:
		case <-ctx.Done():
			w.wg.Wait()
			return
		case <-w.shutdown:
			w.wg.Wait()
			return
		}

		id, err := w.tasks.ClaimOldestPending(ctx, w.now())
		if err != nil {
			<-w.permits
			log.Warn().Err(err).Msg("crawler worker: claim failed")
			continue
		}
		if id == 0 {
			<-w.permits
			select {
			case <-ctx.Done():
				w.wg.Wait()
				return
			case <-w.shutdown:
				w.wg.Wait()
				return
			case <-w.notify:
			case <-time.After(idlePoll):
			}
			continue
		}

		task, err := w.tasks.GetByID(ctx, id)
		if err != nil || task.Parameters == nil {
			<-w.permits
			log.Error().Err(err).Int64("taskId", id).Msg("crawler worker: failed to load claimed task")
			if failErr := w.tasks.Fail(context.Background(), id, w.now(), "failed to load claimed task"); failErr != nil {
				log.Error().Err(failErr).Int64("taskId", id).Msg("crawler worker: failed to mark unloadable task failed")
			}
			continue
		}

		startedAt := w.now()
		if task.StartedAt != nil {
			startedAt = *task.StartedAt
		}
		taskCtx, cancel := context.WithCancel(context.Background())
		w.mu.Lock()
		w.cancels[id] = cancel
		w.mu.Unlock()

		w.wg.Add(1)
		go func(taskID int64, params domain.CrawlerTaskParameters, startedAt int64) {
			defer w.wg.Done()
			defer func() {
				w.mu.Lock()
				delete(w.cancels, taskID)
				w.mu.Unlock()
				<-w.permits
			}()
			w.runWithRetry(taskCtx, taskID, params, startedAt)
		}(id, *task.Parameters, startedAt)
	}
}

// runWithRetry re-invokes exec.Execute up to retryCount times from
// scratch, stopping immediately on cancellation. The final attempt's
// failure (if any) is what gets persisted as the task's error message.
func (w *Worker) runWithRetry(ctx context.Context, taskID int64, params domain.CrawlerTaskParameters, startedAt int64) {
	var lastErr error
	for attempt := 1; attempt <= w.retryCount; attempt++ {
		if ctx.Err() != nil {
			w.writeCancelled(taskID)
			return
		}

		err := w.exec.Execute(ctx, taskID, params, startedAt)
		if err == nil {
			metrics.RecordCrawlerTaskCompleted()
			return
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			w.writeCancelled(taskID)
			return
		}

		lastErr = err
		if attempt < w.retryCount {
			log.Warn().Err(err).Int64("taskId", taskID).Int("attempt", attempt).Msg("crawler worker: attempt failed, retrying")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				w.writeCancelled(taskID)
				return
			}
		}
	}

	metrics.RecordCrawlerTaskFailed()
	if err := w.tasks.Fail(context.Background(), taskID, w.now(), lastErr.Error()); err != nil {
		log.Error().Err(err).Int64("taskId", taskID).Msg("crawler worker: failed to persist terminal failure")
	}
}

func (w *Worker) writeCancelled(taskID int64) {
	if err := w.tasks.Cancel(context.Background(), taskID, w.now()); err != nil && !apperr.IsNotFound(err) {
		log.Error().Err(err).Int64("taskId", taskID).Msg("crawler worker: failed to persist cancellation")
	}
}

// CancelTask fires the cancellation token for taskID if it is currently
// in-flight (best-effort: interruption is observed at the next suspension
// point, not immediately) and marks the row cancelled regardless, so a
// still-pending task can be cancelled before a worker ever claims it.
func (w *Worker) CancelTask(taskID int64) error {
	w.mu.Lock()
	cancel, ok := w.cancels[taskID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return w.tasks.Cancel(context.Background(), taskID, w.now())
}

// Shutdown stops the claim loop and waits for in-flight tasks to finish.
// Safe to call even if Run's ctx was already cancelled.
func (w *Worker) Shutdown() {
	w.exitFlag.Store(true)
	w.closeOnce.Do(func() { close(w.shutdown) })
	w.wg.Wait()
}
