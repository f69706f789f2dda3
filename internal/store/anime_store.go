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

// AnimeStore is the repository for the animes table.
type AnimeStore struct {
	db Querier
}

// NewAnimeStore builds an AnimeStore over db.
func NewAnimeStore(db Querier) *AnimeStore {
	return &AnimeStore{db: db}
}

func scanAnime(scanner interface{ Scan(...any) error }) (*domain.Anime, error) {
	var a domain.Anime
	var originalTitle, broadcastDay, officialWebsite, bangumiURL, description sql.NullString
	var broadcastStart sql.NullInt64
	var status sql.NullString

	if err := scanner.Scan(
		&a.MikanID, &a.BangumiID, &a.Title, &originalTitle, &broadcastDay, &broadcastStart,
		&officialWebsite, &bangumiURL, &description, &status, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if originalTitle.Valid {
		a.OriginalTitle = &originalTitle.String
	}
	if broadcastDay.Valid {
		a.BroadcastDay = &broadcastDay.String
	}
	if broadcastStart.Valid {
		a.BroadcastStart = &broadcastStart.Int64
	}
	if officialWebsite.Valid {
		a.OfficialWebsite = &officialWebsite.String
	}
	if bangumiURL.Valid {
		a.BangumiURL = &bangumiURL.String
	}
	if description.Valid {
		a.Description = &description.String
	}
	if status.Valid {
		a.Status = domain.AnimeStatus(status.String)
	}
	return &a, nil
}

const animeColumns = `mikan_id, bangumi_id, title, original_title, broadcast_day, broadcast_start,
		official_website, bangumi_url, description, status, created_at, updated_at`

// Create inserts a single anime row.
func (s *AnimeStore) Create(ctx context.Context, a *domain.Anime) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO animes (`+animeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.MikanID, a.BangumiID, a.Title, a.OriginalTitle, a.BroadcastDay, a.BroadcastStart,
		a.OfficialWebsite, a.BangumiURL, a.Description, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID fetches one anime by its mikan_id.
func (s *AnimeStore) GetByID(ctx context.Context, mikanID int64) (*domain.Anime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM animes WHERE mikan_id = ?`, mikanID)
	a, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("anime", mikanID)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return a, nil
}

// Update overwrites every mutable column of an existing anime row.
func (s *AnimeStore) Update(ctx context.Context, a *domain.Anime) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE animes SET bangumi_id = ?, title = ?, original_title = ?, broadcast_day = ?,
			broadcast_start = ?, official_website = ?, bangumi_url = ?, description = ?,
			status = ?, updated_at = ?
		WHERE mikan_id = ?
	`, a.BangumiID, a.Title, a.OriginalTitle, a.BroadcastDay, a.BroadcastStart,
		a.OfficialWebsite, a.BangumiURL, a.Description, string(a.Status), a.UpdatedAt, a.MikanID)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("anime", a.MikanID)
	}
	return nil
}

// Delete removes an anime row by mikan_id.
func (s *AnimeStore) Delete(ctx context.Context, mikanID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM animes WHERE mikan_id = ?`, mikanID)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// List returns animes ordered by mikan_id, paginated per the
// limit<=0-is-unbounded convention.
func (s *AnimeStore) List(ctx context.Context, limit, offset int) ([]*domain.Anime, error) {
	l, o := pageArgs(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+animeColumns+` FROM animes ORDER BY mikan_id LIMIT ? OFFSET ?
	`, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.Anime
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// InsertManyAnimes upserts a batch by mikan_id inside tx, updating every
// non-key column except created_at on conflict.
func InsertManyAnimes(ctx context.Context, tx *sql.Tx, animes []*domain.Anime) error {
	if len(animes) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO animes (` + animeColumns + `) VALUES `)
	args := make([]any, 0, len(animes)*12)
	for i, a := range animes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, a.MikanID, a.BangumiID, a.Title, a.OriginalTitle, a.BroadcastDay,
			a.BroadcastStart, a.OfficialWebsite, a.BangumiURL, a.Description, string(a.Status),
			a.CreatedAt, a.UpdatedAt)
	}
	sb.WriteString(`
		ON CONFLICT(mikan_id) DO UPDATE SET
			bangumi_id = excluded.bangumi_id,
			title = excluded.title,
			original_title = excluded.original_title,
			broadcast_day = excluded.broadcast_day,
			broadcast_start = excluded.broadcast_start,
			official_website = excluded.official_website,
			bangumi_url = excluded.bangumi_url,
			description = excluded.description,
			status = excluded.status,
			updated_at = excluded.updated_at
	`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperr.Database(fmt.Errorf("insert many animes: %w", err))
	}
	return nil
}

// GetByBangumiID looks up an anime by its linked bgm.tv subject id. A
// bangumi_id of 0 means unlinked, so callers should never pass it here.
func (s *AnimeStore) GetByBangumiID(ctx context.Context, bangumiID int64) (*domain.Anime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM animes WHERE bangumi_id = ?`, bangumiID)
	a, err := scanAnime(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("anime", bangumiID)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return a, nil
}

// Search matches lower-cased title OR original_title against query with a
// LIKE %q% pattern, used by the library search command.
func (s *AnimeStore) Search(ctx context.Context, query string, limit, offset int) ([]*domain.Anime, error) {
	l, o := pageArgs(limit, offset)
	needle := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+animeColumns+` FROM animes
		WHERE LOWER(title) LIKE ? OR LOWER(COALESCE(original_title, '')) LIKE ?
		ORDER BY mikan_id
		LIMIT ? OFFSET ?
	`, needle, needle, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.Anime
	for rows.Next() {
		a, err := scanAnime(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// CountSearch returns the total row count Search would page over for the
// same query, used to build the pagination envelope alongside one page.
func (s *AnimeStore) CountSearch(ctx context.Context, query string) (int64, error) {
	needle := "%" + strings.ToLower(query) + "%"
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM animes
		WHERE LOWER(title) LIKE ? OR LOWER(COALESCE(original_title, '')) LIKE ?
	`, needle, needle)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, apperr.Database(err)
	}
	return total, nil
}
