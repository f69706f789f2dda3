// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// BangumiImages mirrors the nested image-size struct the bgm.tv API
// returns for a subject/calendar item.
type BangumiImages struct {
	Large  string `json:"large,omitempty"`
	Common string `json:"common,omitempty"`
	Medium string `json:"medium,omitempty"`
	Small  string `json:"small,omitempty"`
	Grid   string `json:"grid,omitempty"`
}

// UserSubscription records that a (possibly anonymous) user has subscribed
// to a bangumi subject. No accounts are modeled; user_id is an opaque
// caller-supplied string.
type UserSubscription struct {
	ID              int64          `json:"id"`
	UserID          string         `json:"userId"`
	BangumiID       int64          `json:"bangumiId"`
	SubscribedAt    int64          `json:"subscribedAt"`
	Notes           *string        `json:"notes,omitempty"`
	AnimeName       *string        `json:"animeName,omitempty"`
	AnimeNameCN     *string        `json:"animeNameCn,omitempty"`
	AnimeRating     *float64       `json:"animeRating,omitempty"`
	AnimeAirDate    *string        `json:"animeAirDate,omitempty"`
	AnimeAirWeekday *int           `json:"animeAirWeekday,omitempty"`
	URL             *string        `json:"url,omitempty"`
	ItemType        *int           `json:"itemType,omitempty"`
	Summary         *string        `json:"summary,omitempty"`
	Rank            *int           `json:"rank,omitempty"`
	Images          *BangumiImages `json:"images,omitempty"`
}

// SubscriptionSort is the set of columns list_with_sort_search_page may sort by.
type SubscriptionSort string

const (
	SubscriptionSortRating  SubscriptionSort = "rating"
	SubscriptionSortAirDate SubscriptionSort = "air_date"
	SubscriptionSortName    SubscriptionSort = "name"
	SubscriptionSortDefault SubscriptionSort = "default"
)

// SubscriptionOrder is the sort direction, case-insensitively accepted.
type SubscriptionOrder string

const (
	SubscriptionOrderAsc  SubscriptionOrder = "asc"
	SubscriptionOrderDesc SubscriptionOrder = "desc"
)
