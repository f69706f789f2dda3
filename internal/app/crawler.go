// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package app

import (
	"context"
	"fmt"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// validateCrawlerTaskCreate mirrors crawler.Service's own list-phase mode
// validation, so an obviously malformed request fails at creation time
// rather than only once a worker picks it up.
func validateCrawlerTaskCreate(in domain.CrawlerTaskCreate) error {
	switch in.Mode {
	case domain.CrawlerModeHomepage:
	case domain.CrawlerModeSeason:
		if in.Year == nil || in.Season == nil {
			return apperr.Input("season mode requires both year and season")
		}
	case domain.CrawlerModeYear:
		if in.Year == nil {
			return apperr.Input("year mode requires a year")
		}
	default:
		return apperr.Input(fmt.Sprintf("unknown crawler mode %q", in.Mode))
	}
	return nil
}

// CreateCrawlerTask queues a new manual crawl and wakes the worker to pick
// it up without waiting out its idle poll interval.
func (f *Facade) CreateCrawlerTask(ctx context.Context, in domain.CrawlerTaskCreate) (*domain.CrawlerTask, error) {
	if err := validateCrawlerTaskCreate(in); err != nil {
		return nil, err
	}
	params := domain.CrawlerTaskParameters{Mode: in.Mode, Year: in.Year, Season: in.Season, Limit: in.Limit}
	id, err := f.tasks.Create(ctx, domain.CrawlerTaskTypeManual, params, f.now())
	if err != nil {
		return nil, err
	}
	f.worker.Wake()
	return f.tasks.GetByID(ctx, id)
}

// GetCrawlerTask returns one crawl task by id, serving both
// get_crawler_task_status and get_crawler_task.
func (f *Facade) GetCrawlerTask(ctx context.Context, id int64) (*domain.CrawlerTask, error) {
	return f.tasks.GetByID(ctx, id)
}

// ListCrawlerTasks returns crawl tasks newest first, paginated.
func (f *Facade) ListCrawlerTasks(ctx context.Context, page, pageSize int) ([]*domain.CrawlerTask, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return f.tasks.List(ctx, pageSize, (page-1)*pageSize)
}

// CancelCrawlerTask interrupts a task's current attempt (best-effort) and
// marks it cancelled, refusing to act on a task that already reached a
// terminal state.
func (f *Facade) CancelCrawlerTask(ctx context.Context, id int64) (*domain.CrawlerTask, error) {
	task, err := f.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, apperr.Conflict(fmt.Sprintf("crawler task %d is not in a cancellable state", id))
	}
	if err := f.worker.CancelTask(id); err != nil {
		return nil, err
	}
	return f.tasks.GetByID(ctx, id)
}

// DeleteCrawlerTask removes a crawl task row.
func (f *Facade) DeleteCrawlerTask(ctx context.Context, id int64) error {
	return f.tasks.Delete(ctx, id)
}
