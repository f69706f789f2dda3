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

// CacheStore is the repository for the three bangumi cache tables. All
// timestamps it reads and writes are epoch-seconds, matching the upstream
// API's cadence rather than the epoch-ms used throughout the rest of the
// schema.
type CacheStore struct {
	db Querier
}

// NewCacheStore builds a CacheStore over db.
func NewCacheStore(db Querier) *CacheStore {
	return &CacheStore{db: db}
}

// GetSubject reads one subject cache row. Returns (nil, nil) when absent.
func (s *CacheStore) GetSubject(ctx context.Context, bangumiID int64) (*domain.SubjectCacheRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, updated_at, ttl FROM bangumi_subject_cache WHERE id = ?
	`, bangumiID)
	var r domain.SubjectCacheRow
	if err := row.Scan(&r.ID, &r.Content, &r.UpdatedAt, &r.TTL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &r, nil
}

// UpsertSubject writes a subject cache row, replacing content/updated_at/ttl.
func (s *CacheStore) UpsertSubject(ctx context.Context, r domain.SubjectCacheRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bangumi_subject_cache (id, content, updated_at, ttl) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at,
			ttl = excluded.ttl
	`, r.ID, r.Content, r.UpdatedAt, r.TTL)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// SetSubjectTTL updates only the ttl column, used by the forced
// revalidation on subscribe/unsubscribe.
func (s *CacheStore) SetSubjectTTL(ctx context.Context, bangumiID, ttl int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bangumi_subject_cache SET ttl = ? WHERE id = ?`, ttl, bangumiID)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// AllSubjectIDs returns every id currently cached, used by the refresh loop
// to compute the non-subscribed complement.
func (s *CacheStore) AllSubjectIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM bangumi_subject_cache`)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// GetEpisodes reads one episodes cache row by its composite key. Returns
// (nil, nil) when absent.
func (s *CacheStore) GetEpisodes(ctx context.Context, bangumiID int64, paramsHash string) (*domain.EpisodesCacheRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, params_hash, content, updated_at, ttl FROM bangumi_episodes_cache
		WHERE id = ? AND params_hash = ?
	`, bangumiID, paramsHash)
	var r domain.EpisodesCacheRow
	if err := row.Scan(&r.ID, &r.ParamsHash, &r.Content, &r.UpdatedAt, &r.TTL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &r, nil
}

// UpsertEpisodes writes an episodes cache row.
func (s *CacheStore) UpsertEpisodes(ctx context.Context, r domain.EpisodesCacheRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bangumi_episodes_cache (id, params_hash, content, updated_at, ttl)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, params_hash) DO UPDATE SET content = excluded.content,
			updated_at = excluded.updated_at, ttl = excluded.ttl
	`, r.ID, r.ParamsHash, r.Content, r.UpdatedAt, r.TTL)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// SetEpisodesTTL updates ttl for every episodes row keyed by bangumiID.
func (s *CacheStore) SetEpisodesTTL(ctx context.Context, bangumiID, ttl int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bangumi_episodes_cache SET ttl = ? WHERE id = ?`, ttl, bangumiID)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// EpisodesRowsFor returns every cached episodes row for a given subject,
// one per distinct params_hash.
func (s *CacheStore) EpisodesRowsFor(ctx context.Context, bangumiID int64) ([]domain.EpisodesCacheRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, params_hash, content, updated_at, ttl FROM bangumi_episodes_cache WHERE id = ?
	`, bangumiID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []domain.EpisodesCacheRow
	for rows.Next() {
		var r domain.EpisodesCacheRow
		if err := rows.Scan(&r.ID, &r.ParamsHash, &r.Content, &r.UpdatedAt, &r.TTL); err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// GetCalendar reads the singleton calendar cache row. Returns (nil, nil)
// when absent.
func (s *CacheStore) GetCalendar(ctx context.Context) (*domain.CalendarCacheRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content, updated_at, ttl FROM bangumi_calendar_cache WHERE id = 1
	`)
	var r domain.CalendarCacheRow
	if err := row.Scan(&r.Content, &r.UpdatedAt, &r.TTL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Database(err)
	}
	return &r, nil
}

// UpsertCalendar writes the singleton calendar cache row.
func (s *CacheStore) UpsertCalendar(ctx context.Context, r domain.CalendarCacheRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bangumi_calendar_cache (id, content, updated_at, ttl) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at,
			ttl = excluded.ttl
	`, r.Content, r.UpdatedAt, r.TTL)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetLastHarvestCheckDate returns the "last check date" string (YYYY-MM-DD,
// UTC) stored in harvest_checks. Returns "" when never set. The refresh loop
// keeps its own in-memory date and does not call this.
func (s *CacheStore) GetLastHarvestCheckDate(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_check_date FROM harvest_checks WHERE id = 1`)
	var date string
	if err := row.Scan(&date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", apperr.Database(err)
	}
	return date, nil
}

// SetLastHarvestCheckDate records today's date as checked.
func (s *CacheStore) SetLastHarvestCheckDate(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO harvest_checks (id, last_check_date) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_check_date = excluded.last_check_date
	`, date)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}
