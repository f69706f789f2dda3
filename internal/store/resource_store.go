// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// ResourceStore is the repository for the resources table.
type ResourceStore struct {
	db Querier
}

// NewResourceStore builds a ResourceStore over db.
func NewResourceStore(db Querier) *ResourceStore {
	return &ResourceStore{db: db}
}

const resourceColumns = `id, mikan_id, subtitle_group_id, episode_number, title, file_size,
		resolution, subtitle_type, magnet_url, torrent_url, magnet_hash, release_date,
		created_at, updated_at`

func scanResource(scanner interface{ Scan(...any) error }) (*domain.Resource, error) {
	var r domain.Resource
	var episodeNumber sql.NullInt64
	var fileSize, resolution, subtitleType, magnetURL, torrentURL, magnetHash sql.NullString
	var releaseDate sql.NullInt64

	if err := scanner.Scan(
		&r.ID, &r.MikanID, &r.SubtitleGroupID, &episodeNumber, &r.Title, &fileSize,
		&resolution, &subtitleType, &magnetURL, &torrentURL, &magnetHash, &releaseDate,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if episodeNumber.Valid {
		v := int32(episodeNumber.Int64)
		r.EpisodeNumber = &v
	}
	if fileSize.Valid {
		r.FileSize = &fileSize.String
	}
	if resolution.Valid {
		r.Resolution = &resolution.String
	}
	if subtitleType.Valid {
		r.SubtitleType = &subtitleType.String
	}
	if magnetURL.Valid {
		r.MagnetURL = &magnetURL.String
	}
	if torrentURL.Valid {
		r.TorrentURL = &torrentURL.String
	}
	if magnetHash.Valid {
		r.MagnetHash = &magnetHash.String
	}
	if releaseDate.Valid {
		r.ReleaseDate = &releaseDate.Int64
	}
	return &r, nil
}

// Create inserts a single resource row, returning the generated id.
func (s *ResourceStore) Create(ctx context.Context, r *domain.Resource) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (mikan_id, subtitle_group_id, episode_number, title, file_size,
			resolution, subtitle_type, magnet_url, torrent_url, magnet_hash, release_date,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.MikanID, r.SubtitleGroupID, r.EpisodeNumber, r.Title, r.FileSize, r.Resolution,
		r.SubtitleType, r.MagnetURL, r.TorrentURL, r.MagnetHash, r.ReleaseDate, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return 0, apperr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Database(err)
	}
	return id, nil
}

// GetByID fetches one resource.
func (s *ResourceStore) GetByID(ctx context.Context, id int64) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("resource", id)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return r, nil
}

// Update overwrites every mutable column of an existing resource row.
func (s *ResourceStore) Update(ctx context.Context, r *domain.Resource) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET mikan_id = ?, subtitle_group_id = ?, episode_number = ?, title = ?,
			file_size = ?, resolution = ?, subtitle_type = ?, magnet_url = ?, torrent_url = ?,
			magnet_hash = ?, release_date = ?, updated_at = ?
		WHERE id = ?
	`, r.MikanID, r.SubtitleGroupID, r.EpisodeNumber, r.Title, r.FileSize, r.Resolution,
		r.SubtitleType, r.MagnetURL, r.TorrentURL, r.MagnetHash, r.ReleaseDate, r.UpdatedAt, r.ID)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("resource", r.ID)
	}
	return nil
}

// Delete removes a resource row by id.
func (s *ResourceStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// List returns resources ordered by id.
func (s *ResourceStore) List(ctx context.Context, limit, offset int) ([]*domain.Resource, error) {
	l, o := pageArgs(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resourceColumns+` FROM resources ORDER BY id LIMIT ? OFFSET ?
	`, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()
	return scanResourceRows(rows)
}

func scanResourceRows(rows *sql.Rows) ([]*domain.Resource, error) {
	var out []*domain.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// ResourceFilter selects the optional predicates accepted by Filter.
type ResourceFilter struct {
	MikanID       int64
	Resolution    *string
	EpisodeNumber *int32
	SubtitleType  *string
}

// Filter returns resources for a show matching the optional predicates,
// newest release first.
func (s *ResourceStore) Filter(ctx context.Context, f ResourceFilter, limit, offset int) ([]*domain.Resource, error) {
	l, o := pageArgs(limit, offset)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + resourceColumns + ` FROM resources WHERE mikan_id = ?`)
	args := []any{f.MikanID}

	if f.Resolution != nil {
		sb.WriteString(` AND resolution = ?`)
		args = append(args, *f.Resolution)
	}
	if f.EpisodeNumber != nil {
		sb.WriteString(` AND episode_number = ?`)
		args = append(args, *f.EpisodeNumber)
	}
	if f.SubtitleType != nil {
		sb.WriteString(` AND subtitle_type = ?`)
		args = append(args, *f.SubtitleType)
	}
	sb.WriteString(` ORDER BY release_date DESC LIMIT ? OFFSET ?`)
	args = append(args, l, o)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()
	return scanResourceRows(rows)
}

// EpisodeCount pairs an episode number with its resource count.
type EpisodeCount struct {
	EpisodeNumber int32
	Count         int64
}

// CountByEpisode returns the resource count per non-null episode number for
// a show, ascending.
func (s *ResourceStore) CountByEpisode(ctx context.Context, mikanID int64) ([]EpisodeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_number, COUNT(*) FROM resources
		WHERE mikan_id = ? AND episode_number IS NOT NULL
		GROUP BY episode_number
		ORDER BY episode_number ASC
	`, mikanID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []EpisodeCount
	for rows.Next() {
		var c EpisodeCount
		if err := rows.Scan(&c.EpisodeNumber, &c.Count); err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// InsertManyResources upserts a batch by magnet_hash inside tx, updating
// every non-key column except created_at on conflict. Resources without a
// magnet_hash have no stable natural key to conflict on and are dropped
// rather than inserted unconditionally.
func InsertManyResources(ctx context.Context, tx *sql.Tx, resources []*domain.Resource) error {
	keyed := make([]*domain.Resource, 0, len(resources))
	for _, r := range resources {
		if r.MagnetHash != nil && *r.MagnetHash != "" {
			keyed = append(keyed, r)
		}
	}
	if len(keyed) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO resources (mikan_id, subtitle_group_id, episode_number, title,
		file_size, resolution, subtitle_type, magnet_url, torrent_url, magnet_hash, release_date,
		created_at, updated_at) VALUES `)
	args := make([]any, 0, len(keyed)*13)
	for i, r := range keyed {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.MikanID, r.SubtitleGroupID, r.EpisodeNumber, r.Title, r.FileSize,
			r.Resolution, r.SubtitleType, r.MagnetURL, r.TorrentURL, r.MagnetHash, r.ReleaseDate,
			r.CreatedAt, r.UpdatedAt)
	}
	sb.WriteString(`
		ON CONFLICT(magnet_hash) DO UPDATE SET
			mikan_id = excluded.mikan_id,
			subtitle_group_id = excluded.subtitle_group_id,
			episode_number = excluded.episode_number,
			title = excluded.title,
			file_size = excluded.file_size,
			resolution = excluded.resolution,
			subtitle_type = excluded.subtitle_type,
			magnet_url = excluded.magnet_url,
			torrent_url = excluded.torrent_url,
			release_date = excluded.release_date,
			updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperr.Database(fmt.Errorf("insert many resources: %w", err))
	}

	return nil
}
