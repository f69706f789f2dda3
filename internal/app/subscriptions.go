// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package app

import (
	"context"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// Subscribe records userID's subscription to bangumiID and forces a fresh
// cache entry at the subscribed TTL tier. Conflicts if already subscribed.
func (f *Facade) Subscribe(ctx context.Context, in domain.SubscribeInput) (*domain.UserSubscription, error) {
	if existing, err := f.subs.GetByUserAndBangumi(ctx, in.UserID, in.BangumiID); err != nil {
		if !apperr.IsNotFound(err) {
			return nil, err
		}
	} else if existing != nil {
		return nil, apperr.Conflict("already subscribed")
	}

	sub := &domain.UserSubscription{
		UserID:          in.UserID,
		BangumiID:       in.BangumiID,
		SubscribedAt:    f.now(),
		Notes:           in.Notes,
		AnimeName:       in.AnimeName,
		AnimeNameCN:     in.AnimeNameCN,
		AnimeRating:     in.AnimeRating,
		AnimeAirDate:    in.AnimeAirDate,
		AnimeAirWeekday: in.AnimeAirWeekday,
		URL:             in.URL,
		ItemType:        in.ItemType,
		Summary:         in.Summary,
		Rank:            in.Rank,
		Images:          in.Images,
	}
	id, err := f.subs.Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.ID = id

	if err := f.catalog.OnSubscribe(ctx, in.BangumiID); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes userID's subscription to bangumiID and relaxes its
// cache entry to the non-subscribed TTL tier.
func (f *Facade) Unsubscribe(ctx context.Context, userID string, bangumiID int64) error {
	if err := f.subs.Delete(ctx, userID, bangumiID); err != nil {
		return err
	}
	return f.catalog.OnUnsubscribe(ctx, bangumiID)
}

// GetSubscriptions returns userID's subscriptions sorted, optionally
// search-filtered, and paginated.
func (f *Facade) GetSubscriptions(ctx context.Context, q domain.GetSubscriptionsQuery) (*domain.SubscriptionsPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	subs, total, err := f.subs.ListWithSortSearchPage(ctx, q.UserID, q.Sort, q.Order, q.Search, page, limit)
	if err != nil {
		return nil, err
	}
	return &domain.SubscriptionsPage{
		Subscriptions: subs,
		Pagination:    domain.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

// CheckSubscription reports whether userID subscribes to bangumiID.
func (f *Facade) CheckSubscription(ctx context.Context, userID string, bangumiID int64) (*domain.SubscriptionCheck, error) {
	sub, err := f.subs.GetByUserAndBangumi(ctx, userID, bangumiID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return &domain.SubscriptionCheck{Subscribed: false}, nil
		}
		return nil, err
	}
	if sub == nil {
		return &domain.SubscriptionCheck{Subscribed: false}, nil
	}
	subscribedAt := sub.SubscribedAt
	return &domain.SubscriptionCheck{Subscribed: true, SubscribedAt: &subscribedAt, Notes: sub.Notes}, nil
}

// GetAllSubscriptionIDs returns every bangumi id userID subscribes to.
func (f *Facade) GetAllSubscriptionIDs(ctx context.Context, userID string) (*domain.SubscriptionIDs, error) {
	subs, err := f.subs.List(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.BangumiID)
	}
	return &domain.SubscriptionIDs{IDs: ids}, nil
}
