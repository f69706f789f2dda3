// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// EpisodeAvailability reports, per episode number, whether any resource has
// been harvested for it yet.
type EpisodeAvailability struct {
	BangumiID int64                        `json:"bangumiId"`
	Episodes  map[int32]EpisodeResourceRow `json:"episodes"`
}

// EpisodeResourceRow is one entry of EpisodeAvailability.Episodes.
type EpisodeResourceRow struct {
	Available     bool  `json:"available"`
	ResourceCount int64 `json:"resourceCount"`
}

// SubtitleGroupResources is one subtitle group's resources for a show,
// grouped for display by get_episode_resources / get_anime_resources.
type SubtitleGroupResources struct {
	SubtitleGroupID   int64       `json:"subtitleGroupId"`
	SubtitleGroupName string      `json:"subtitleGroupName"`
	Resources         []*Resource `json:"resources"`
}

// GroupedResources is the get_episode_resources / get_anime_resources
// result: every matching resource bucketed by its subtitle group.
type GroupedResources struct {
	BangumiID int64                    `json:"bangumiId"`
	Groups    []SubtitleGroupResources `json:"groups"`
}

// SearchLibraryResult is search_library's result.
type SearchLibraryResult struct {
	BangumiIDs []int64    `json:"bangumiIds"`
	Pagination Pagination `json:"pagination"`
}

// SubscriptionsPage is get_subscriptions's result.
type SubscriptionsPage struct {
	Subscriptions []*UserSubscription `json:"subscriptions"`
	Pagination    Pagination          `json:"pagination"`
}

// SubscriptionCheck is check_subscription's result.
type SubscriptionCheck struct {
	Subscribed   bool    `json:"subscribed"`
	SubscribedAt *int64  `json:"subscribedAt,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// SubscriptionIDs is get_all_subscription_ids's result.
type SubscriptionIDs struct {
	IDs []int64 `json:"ids"`
}

// SubscribeInput is subscribe's input: a bangumi id plus the metadata
// snapshot to store alongside it for listing without a calendar refetch.
type SubscribeInput struct {
	UserID          string
	BangumiID       int64
	Notes           *string
	AnimeName       *string
	AnimeNameCN     *string
	AnimeRating     *float64
	AnimeAirDate    *string
	AnimeAirWeekday *int
	URL             *string
	ItemType        *int
	Summary         *string
	Rank            *int
	Images          *BangumiImages
}

// GetSubscriptionsQuery is get_subscriptions's input.
type GetSubscriptionsQuery struct {
	UserID string
	Sort   SubscriptionSort
	Order  SubscriptionOrder
	Search *string
	Page   int
	Limit  int
}

// AnimeResourcesQuery is get_anime_resources's input.
type AnimeResourcesQuery struct {
	BangumiID    int64
	Resolution   *string
	SubtitleType *string
	Limit        int
	Offset       int
}
