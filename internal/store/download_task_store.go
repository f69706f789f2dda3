// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// DownloadTaskStore is the repository for the download_tasks table. Unlike
// every other entity, id here is the torrent session handle id, not an
// autoincrement surrogate — see domain.DownloadTask.
type DownloadTaskStore struct {
	db Querier
}

// NewDownloadTaskStore builds a DownloadTaskStore over db.
func NewDownloadTaskStore(db Querier) *DownloadTaskStore {
	return &DownloadTaskStore{db: db}
}

const downloadTaskColumns = `id, magnet_url, save_path, title, status, bangumi_id, resource_id,
		episode_number, name, name_cn, cover, total_size, created_at, updated_at, error_msg`

func scanDownloadTask(scanner interface{ Scan(...any) error }) (*domain.DownloadTask, error) {
	var d domain.DownloadTask
	var savePath, errorMsg sql.NullString

	if err := scanner.Scan(
		&d.ID, &d.MagnetURL, &savePath, &d.Title, &d.Status, &d.BangumiID, &d.ResourceID,
		&d.EpisodeNumber, &d.Name, &d.NameCN, &d.Cover, &d.TotalSize, &d.CreatedAt, &d.UpdatedAt,
		&errorMsg,
	); err != nil {
		return nil, err
	}

	if savePath.Valid {
		d.SavePath = &savePath.String
	}
	if errorMsg.Valid {
		d.ErrorMsg = &errorMsg.String
	}
	return &d, nil
}

// Create inserts a download task row keyed by the session handle id that
// produced it.
func (s *DownloadTaskStore) Create(ctx context.Context, d *domain.DownloadTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_tasks (id, magnet_url, save_path, title, status, bangumi_id,
			resource_id, episode_number, name, name_cn, cover, total_size, created_at, updated_at,
			error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.MagnetURL, d.SavePath, d.Title, d.Status, d.BangumiID, d.ResourceID,
		d.EpisodeNumber, d.Name, d.NameCN, d.Cover, d.TotalSize, d.CreatedAt, d.UpdatedAt, d.ErrorMsg)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID fetches one download task by its session handle id.
func (s *DownloadTaskStore) GetByID(ctx context.Context, id int64) (*domain.DownloadTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+downloadTaskColumns+` FROM download_tasks WHERE id = ?`, id)
	d, err := scanDownloadTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("download_task", id)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return d, nil
}

// UpdateStatus transitions a download task's status, optionally refreshing
// total_size and error_msg, and bumps updated_at. Used by both manual
// transitions (pause/resume) and the reconciliation loop.
func (s *DownloadTaskStore) UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, totalSize int64, errMsg *string, updatedAt int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE download_tasks SET status = ?, total_size = ?, error_msg = ?, updated_at = ? WHERE id = ?
	`, status, totalSize, errMsg, updatedAt, id)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("download_task", id)
	}
	return nil
}

// Delete removes a download task row.
func (s *DownloadTaskStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM download_tasks WHERE id = ?`, id); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// List returns every download task with status != deleted.
func (s *DownloadTaskStore) List(ctx context.Context) ([]*domain.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadTaskColumns+` FROM download_tasks WHERE status != ? ORDER BY created_at DESC
	`, domain.DownloadStatusDeleted)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.DownloadTask
	for rows.Next() {
		d, err := scanDownloadTask(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// ListActive returns tasks not in a completed, failed, or deleted state,
// used by the download engine to re-add magnets on restart.
func (s *DownloadTaskStore) ListActive(ctx context.Context) ([]*domain.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadTaskColumns+` FROM download_tasks
		WHERE status NOT IN (?, ?, ?)
		ORDER BY created_at ASC
	`, domain.DownloadStatusCompleted, domain.DownloadStatusFailed, domain.DownloadStatusDeleted)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.DownloadTask
	for rows.Next() {
		d, err := scanDownloadTask(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// ListNotCompleted returns tasks with status != completed, the set the
// reconciliation loop sweeps each tick.
func (s *DownloadTaskStore) ListNotCompleted(ctx context.Context) ([]*domain.DownloadTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadTaskColumns+` FROM download_tasks WHERE status != ?
	`, domain.DownloadStatusCompleted)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.DownloadTask
	for rows.Next() {
		d, err := scanDownloadTask(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}
