// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// CrawlerTaskStore is the repository for the crawler_tasks table.
type CrawlerTaskStore struct {
	db Querier
}

// NewCrawlerTaskStore builds a CrawlerTaskStore over db.
func NewCrawlerTaskStore(db Querier) *CrawlerTaskStore {
	return &CrawlerTaskStore{db: db}
}

const crawlerTaskColumns = `id, task_type, status, parameters, result_summary, created_at, started_at,
		completed_at, error_message, percentage, processed_items, total_items, processing_speed,
		estimated_remaining`

func scanCrawlerTask(scanner interface{ Scan(...any) error }) (*domain.CrawlerTask, error) {
	var t domain.CrawlerTask
	var parameters, resultSummary, errorMessage sql.NullString
	var createdAt, startedAt, completedAt sql.NullInt64
	var processingSpeed, estimatedRemaining sql.NullFloat64

	if err := scanner.Scan(
		&t.ID, &t.TaskType, &t.Status, &parameters, &resultSummary, &createdAt, &startedAt,
		&completedAt, &errorMessage, &t.Percentage, &t.ProcessedItems, &t.TotalItems,
		&processingSpeed, &estimatedRemaining,
	); err != nil {
		return nil, err
	}

	if parameters.Valid && parameters.String != "" {
		var p domain.CrawlerTaskParameters
		if err := json.Unmarshal([]byte(parameters.String), &p); err != nil {
			return nil, err
		}
		t.Parameters = &p
	}
	if resultSummary.Valid {
		t.ResultSummary = &resultSummary.String
	}
	if createdAt.Valid {
		t.CreatedAt = &createdAt.Int64
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Int64
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Int64
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if processingSpeed.Valid {
		t.ProcessingSpeed = &processingSpeed.Float64
	}
	if estimatedRemaining.Valid {
		t.EstimatedRemaining = &estimatedRemaining.Float64
	}
	return &t, nil
}

// Create inserts a pending task with zeroed progress counters, per the
// lifecycle's required initial state, and returns the generated id.
func (s *CrawlerTaskStore) Create(ctx context.Context, taskType domain.CrawlerTaskType, params domain.CrawlerTaskParameters, createdAt int64) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, apperr.Serialization(err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crawler_tasks (task_type, status, parameters, created_at, percentage,
			processed_items, total_items)
		VALUES (?, ?, ?, ?, 0, 0, 0)
	`, taskType, domain.CrawlerTaskStatusPending, string(paramsJSON), createdAt)
	if err != nil {
		return 0, apperr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Database(err)
	}
	return id, nil
}

// GetByID fetches one crawler task.
func (s *CrawlerTaskStore) GetByID(ctx context.Context, id int64) (*domain.CrawlerTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+crawlerTaskColumns+` FROM crawler_tasks WHERE id = ?`, id)
	t, err := scanCrawlerTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("crawler_task", id)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return t, nil
}

// Delete removes a crawler task row.
func (s *CrawlerTaskStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawler_tasks WHERE id = ?`, id)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("crawler_task", id)
	}
	return nil
}

// List returns crawler tasks ordered newest-first.
func (s *CrawlerTaskStore) List(ctx context.Context, limit, offset int) ([]*domain.CrawlerTask, error) {
	l, o := pageArgs(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+crawlerTaskColumns+` FROM crawler_tasks ORDER BY id DESC LIMIT ? OFFSET ?
	`, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.CrawlerTask
	for rows.Next() {
		t, err := scanCrawlerTask(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// ClaimOldestPending transitions the oldest pending task to running,
// setting started_at, and returns its id. Returns (0, nil) when no pending
// task exists.
func (s *CrawlerTaskStore) ClaimOldestPending(ctx context.Context, now int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM crawler_tasks WHERE status = ? ORDER BY id ASC LIMIT 1
	`, domain.CrawlerTaskStatusPending)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, apperr.Database(err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`, domain.CrawlerTaskStatusRunning, now, id, domain.CrawlerTaskStatusPending)
	if err != nil {
		return 0, apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Database(err)
	}
	if rows == 0 {
		// Lost the race to claim this row; caller should retry on the next poll.
		return 0, nil
	}
	return id, nil
}

// SetTotalItems records the total unit count once the list phase completes.
func (s *CrawlerTaskStore) SetTotalItems(ctx context.Context, id int64, total int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE crawler_tasks SET total_items = ? WHERE id = ?`, total, id)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// CrawlerProgressUpdate is the set of fields written after each completed detail
// unit during the crawl's detail phase.
type CrawlerProgressUpdate struct {
	ProcessedItems     int64
	Percentage         float64
	ProcessingSpeed    float64
	EstimatedRemaining float64
}

// UpdateProgress persists a progress tick.
func (s *CrawlerTaskStore) UpdateProgress(ctx context.Context, id int64, p CrawlerProgressUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET processed_items = ?, percentage = ?, processing_speed = ?,
			estimated_remaining = ?
		WHERE id = ?
	`, p.ProcessedItems, p.Percentage, p.ProcessingSpeed, p.EstimatedRemaining, id)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Complete marks a task completed: percentage=100, estimated_remaining=0.
func (s *CrawlerTaskStore) Complete(ctx context.Context, id int64, completedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET status = ?, percentage = 100, estimated_remaining = 0,
			completed_at = ?
		WHERE id = ?
	`, domain.CrawlerTaskStatusCompleted, completedAt, id)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Fail marks a task failed with the given error message.
func (s *CrawlerTaskStore) Fail(ctx context.Context, id int64, completedAt int64, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET status = ?, completed_at = ?, error_message = ? WHERE id = ?
	`, domain.CrawlerTaskStatusFailed, completedAt, msg, id)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Cancel marks a task cancelled. Used both for in-flight cancellation and
// for cancelling a task still in pending state before pickup.
func (s *CrawlerTaskStore) Cancel(ctx context.Context, id int64, completedAt int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)
	`, domain.CrawlerTaskStatusCancelled, completedAt, "任务被取消", id,
		domain.CrawlerTaskStatusPending, domain.CrawlerTaskStatusRunning)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("crawler_task", id)
	}
	return nil
}

// MarkAllRunningAsFailed sets every row with status=running to failed with
// msg, called once at process startup to recover from a crash mid-task.
func (s *CrawlerTaskStore) MarkAllRunningAsFailed(ctx context.Context, completedAt int64, msg string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawler_tasks SET status = ?, completed_at = ?, error_message = ? WHERE status = ?
	`, domain.CrawlerTaskStatusFailed, completedAt, msg, domain.CrawlerTaskStatusRunning)
	if err != nil {
		return 0, apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Database(err)
	}
	return rows, nil
}

// HasCompletedScheduledHomepageInWindow reports whether a scheduled
// homepage task reached completed status within [windowStart, windowEnd]
// (both epoch-ms, inclusive).
func (s *CrawlerTaskStore) HasCompletedScheduledHomepageInWindow(ctx context.Context, windowStart, windowEnd int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crawler_tasks
		WHERE task_type = ? AND status = ?
			AND json_extract(parameters, '$.mode') = 'homepage'
			AND completed_at BETWEEN ? AND ?
	`, domain.CrawlerTaskTypeScheduled, domain.CrawlerTaskStatusCompleted, windowStart, windowEnd)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, apperr.Database(err)
	}
	return count > 0, nil
}

// HasPendingOrRunningScheduledHomepage reports whether a scheduled homepage
// task is currently pending or running, used alongside
// HasCompletedScheduledHomepageInWindow to decide whether to enqueue the
// daily harvest.
func (s *CrawlerTaskStore) HasPendingOrRunningScheduledHomepage(ctx context.Context) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crawler_tasks
		WHERE task_type = ? AND status IN (?, ?)
			AND json_extract(parameters, '$.mode') = 'homepage'
	`, domain.CrawlerTaskTypeScheduled, domain.CrawlerTaskStatusPending, domain.CrawlerTaskStatusRunning)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, apperr.Database(err)
	}
	return count > 0, nil
}
