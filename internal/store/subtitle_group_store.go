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

// SubtitleGroupStore is the repository for the subtitle_groups table.
type SubtitleGroupStore struct {
	db Querier
}

// NewSubtitleGroupStore builds a SubtitleGroupStore over db.
func NewSubtitleGroupStore(db Querier) *SubtitleGroupStore {
	return &SubtitleGroupStore{db: db}
}

func scanSubtitleGroup(scanner interface{ Scan(...any) error }) (*domain.SubtitleGroup, error) {
	var g domain.SubtitleGroup
	var lastUpdate sql.NullInt64
	if err := scanner.Scan(&g.ID, &g.Name, &lastUpdate, &g.CreatedAt); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		g.LastUpdate = &lastUpdate.Int64
	}
	return &g, nil
}

// Create inserts a single subtitle group row.
func (s *SubtitleGroupStore) Create(ctx context.Context, g *domain.SubtitleGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subtitle_groups (id, name, last_update, created_at) VALUES (?, ?, ?, ?)
	`, g.ID, g.Name, g.LastUpdate, g.CreatedAt)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// GetByID fetches one subtitle group.
func (s *SubtitleGroupStore) GetByID(ctx context.Context, id int64) (*domain.SubtitleGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, last_update, created_at FROM subtitle_groups WHERE id = ?
	`, id)
	g, err := scanSubtitleGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("subtitle_group", id)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return g, nil
}

// Update overwrites name and last_update for an existing group.
func (s *SubtitleGroupStore) Update(ctx context.Context, g *domain.SubtitleGroup) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subtitle_groups SET name = ?, last_update = ? WHERE id = ?
	`, g.Name, g.LastUpdate, g.ID)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("subtitle_group", g.ID)
	}
	return nil
}

// Delete removes a subtitle group by id.
func (s *SubtitleGroupStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subtitle_groups WHERE id = ?`, id); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// List returns subtitle groups ordered by id.
func (s *SubtitleGroupStore) List(ctx context.Context, limit, offset int) ([]*domain.SubtitleGroup, error) {
	l, o := pageArgs(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, last_update, created_at FROM subtitle_groups ORDER BY id LIMIT ? OFFSET ?
	`, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()

	var out []*domain.SubtitleGroup
	for rows.Next() {
		g, err := scanSubtitleGroup(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// InsertManySubtitleGroups upserts a batch by id inside tx, updating only
// name and last_update on conflict.
func InsertManySubtitleGroups(ctx context.Context, tx *sql.Tx, groups []*domain.SubtitleGroup) error {
	if len(groups) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO subtitle_groups (id, name, last_update, created_at) VALUES `)
	args := make([]any, 0, len(groups)*4)
	for i, g := range groups {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, g.ID, g.Name, g.LastUpdate, g.CreatedAt)
	}
	sb.WriteString(`
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_update = excluded.last_update
	`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperr.Database(fmt.Errorf("insert many subtitle groups: %w", err))
	}
	return nil
}
