// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// SubscriptionStore is the repository for the user_subscriptions table.
type SubscriptionStore struct {
	db Querier
}

// NewSubscriptionStore builds a SubscriptionStore over db.
func NewSubscriptionStore(db Querier) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `id, user_id, bangumi_id, subscribed_at, notes, anime_name, anime_name_cn,
		anime_rating, anime_air_date, anime_air_weekday, url, item_type, summary, rank, images`

func scanSubscription(scanner interface{ Scan(...any) error }) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	var notes, animeName, animeNameCN, animeAirDate, url, summary sql.NullString
	var animeRating sql.NullFloat64
	var animeAirWeekday, itemType, rank sql.NullInt64
	var images sql.NullString

	if err := scanner.Scan(
		&sub.ID, &sub.UserID, &sub.BangumiID, &sub.SubscribedAt, &notes, &animeName, &animeNameCN,
		&animeRating, &animeAirDate, &animeAirWeekday, &url, &itemType, &summary, &rank, &images,
	); err != nil {
		return nil, err
	}

	if notes.Valid {
		sub.Notes = &notes.String
	}
	if animeName.Valid {
		sub.AnimeName = &animeName.String
	}
	if animeNameCN.Valid {
		sub.AnimeNameCN = &animeNameCN.String
	}
	if animeRating.Valid {
		sub.AnimeRating = &animeRating.Float64
	}
	if animeAirDate.Valid {
		sub.AnimeAirDate = &animeAirDate.String
	}
	if animeAirWeekday.Valid {
		v := int(animeAirWeekday.Int64)
		sub.AnimeAirWeekday = &v
	}
	if url.Valid {
		sub.URL = &url.String
	}
	if itemType.Valid {
		v := int(itemType.Int64)
		sub.ItemType = &v
	}
	if summary.Valid {
		sub.Summary = &summary.String
	}
	if rank.Valid {
		v := int(rank.Int64)
		sub.Rank = &v
	}
	if images.Valid && images.String != "" {
		var img domain.BangumiImages
		if err := json.Unmarshal([]byte(images.String), &img); err == nil {
			sub.Images = &img
		}
	}
	return &sub, nil
}

func marshalImages(img *domain.BangumiImages) (any, error) {
	if img == nil {
		return nil, nil
	}
	data, err := json.Marshal(img)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Create inserts a single subscription row, returning the generated id.
// Returns a Conflict error if (user_id, bangumi_id) already exists.
func (s *SubscriptionStore) Create(ctx context.Context, sub *domain.UserSubscription) (int64, error) {
	images, err := marshalImages(sub.Images)
	if err != nil {
		return 0, apperr.Serialization(err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (user_id, bangumi_id, subscribed_at, notes, anime_name,
			anime_name_cn, anime_rating, anime_air_date, anime_air_weekday, url, item_type,
			summary, rank, images)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.UserID, sub.BangumiID, sub.SubscribedAt, sub.Notes, sub.AnimeName, sub.AnimeNameCN,
		sub.AnimeRating, sub.AnimeAirDate, sub.AnimeAirWeekday, sub.URL, sub.ItemType,
		sub.Summary, sub.Rank, images)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, apperr.Conflict(fmt.Sprintf("already subscribed to bangumi %d", sub.BangumiID))
		}
		return 0, apperr.Database(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Database(err)
	}
	return id, nil
}

// GetByID fetches one subscription.
func (s *SubscriptionStore) GetByID(ctx context.Context, id int64) (*domain.UserSubscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("subscription", id)
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return sub, nil
}

// GetByUserAndBangumi fetches a subscription by its natural key. Returns
// (nil, nil) when no such row exists — existence is the check callers want,
// not an error condition.
func (s *SubscriptionStore) GetByUserAndBangumi(ctx context.Context, userID string, bangumiID int64) (*domain.UserSubscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = ? AND bangumi_id = ?
	`, userID, bangumiID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database(err)
	}
	return sub, nil
}

// Update overwrites the mutable columns of an existing subscription.
func (s *SubscriptionStore) Update(ctx context.Context, sub *domain.UserSubscription) error {
	images, err := marshalImages(sub.Images)
	if err != nil {
		return apperr.Serialization(err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE user_subscriptions SET notes = ?, anime_name = ?, anime_name_cn = ?, anime_rating = ?,
			anime_air_date = ?, anime_air_weekday = ?, url = ?, item_type = ?, summary = ?, rank = ?,
			images = ?
		WHERE id = ?
	`, sub.Notes, sub.AnimeName, sub.AnimeNameCN, sub.AnimeRating, sub.AnimeAirDate,
		sub.AnimeAirWeekday, sub.URL, sub.ItemType, sub.Summary, sub.Rank, images, sub.ID)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("subscription", sub.ID)
	}
	return nil
}

// Delete removes a subscription by (user_id, bangumi_id).
func (s *SubscriptionStore) Delete(ctx context.Context, userID string, bangumiID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM user_subscriptions WHERE user_id = ? AND bangumi_id = ?
	`, userID, bangumiID)
	if err != nil {
		return apperr.Database(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Database(err)
	}
	if rows == 0 {
		return apperr.NotFound("subscription", bangumiID)
	}
	return nil
}

// List returns all subscriptions for a user ordered by id.
func (s *SubscriptionStore) List(ctx context.Context, userID string, limit, offset int) ([]*domain.UserSubscription, error) {
	l, o := pageArgs(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = ? ORDER BY id LIMIT ? OFFSET ?
	`, userID, l, o)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer rows.Close()
	return scanSubscriptionRows(rows)
}

func scanSubscriptionRows(rows *sql.Rows) ([]*domain.UserSubscription, error) {
	var out []*domain.UserSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database(err)
	}
	return out, nil
}

// AllBangumiIDs returns every distinct bangumi_id subscribed by any user,
// used by the cache refresh loop to distinguish the subscribed tier.
func (s *SubscriptionStore) AllBangumiIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT bangumi_id FROM user_subscriptions`)
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

// IsSubscribed reports whether any user currently subscribes to bangumiID,
// used by the cache service to pick the subscribed vs non-subscribed TTL tier.
func (s *SubscriptionStore) IsSubscribed(ctx context.Context, bangumiID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM user_subscriptions WHERE bangumi_id = ? LIMIT 1`, bangumiID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apperr.Database(err)
	}
	return true, nil
}

var sortColumns = map[domain.SubscriptionSort]string{
	domain.SubscriptionSortRating:  "anime_rating",
	domain.SubscriptionSortAirDate: "anime_air_date",
	domain.SubscriptionSortName:    "anime_name_cn",
	domain.SubscriptionSortDefault: "subscribed_at",
}

// ListWithSortSearchPage returns a user's subscriptions sorted, optionally
// filtered by a case-insensitive substring match against anime_name OR
// anime_name_cn, and paginated, plus the total matching row count.
func (s *SubscriptionStore) ListWithSortSearchPage(
	ctx context.Context,
	userID string,
	sort domain.SubscriptionSort,
	order domain.SubscriptionOrder,
	search *string,
	page, limit int,
) ([]*domain.UserSubscription, int64, error) {
	col, ok := sortColumns[sort]
	if !ok {
		col = sortColumns[domain.SubscriptionSortDefault]
	}
	dir := "ASC"
	if strings.EqualFold(string(order), "desc") {
		dir = "DESC"
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	where := `WHERE user_id = ?`
	args := []any{userID}
	if search != nil && strings.TrimSpace(*search) != "" {
		needle := "%" + strings.ToLower(*search) + "%"
		where += ` AND (LOWER(COALESCE(anime_name, '')) LIKE ? OR LOWER(COALESCE(anime_name_cn, '')) LIKE ?)`
		args = append(args, needle, needle)
	}

	var total int64
	countRow := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_subscriptions `+where, args...)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, apperr.Database(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM user_subscriptions %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		subscriptionColumns, where, col, dir)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Database(err)
	}
	defer rows.Close()

	subs, err := scanSubscriptionRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}
