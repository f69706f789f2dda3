// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package app

import (
	"context"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/store"
)

// GetCalendar returns the weekly broadcast calendar.
func (f *Facade) GetCalendar(ctx context.Context) ([]domain.BangumiWeekday, error) {
	return f.catalog.GetCalendar(ctx)
}

// GetSubject returns one subject by its bangumi id.
func (f *Facade) GetSubject(ctx context.Context, id int64) (*domain.BangumiSubject, error) {
	return f.catalog.GetSubject(ctx, id)
}

// GetEpisodes returns one episodes page.
func (f *Facade) GetEpisodes(ctx context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error) {
	return f.catalog.GetEpisodes(ctx, q)
}

// anime resolves bangumiID to its harvested anime row, returning (nil, nil)
// when the show has never been crawled rather than a NotFound error: every
// caller of this helper reports that case as a null result, not a failure.
func (f *Facade) anime(ctx context.Context, bangumiID int64) (*domain.Anime, error) {
	a, err := f.animes.GetByBangumiID(ctx, bangumiID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// GetEpisodeAvailability reports, per episode number, whether any resource
// has been harvested for it yet. Returns nil if bangumiID has never been
// crawled.
func (f *Facade) GetEpisodeAvailability(ctx context.Context, bangumiID int64) (*domain.EpisodeAvailability, error) {
	a, err := f.anime(ctx, bangumiID)
	if err != nil || a == nil {
		return nil, err
	}
	counts, err := f.resources.CountByEpisode(ctx, a.MikanID)
	if err != nil {
		return nil, err
	}
	episodes := make(map[int32]domain.EpisodeResourceRow, len(counts))
	for _, c := range counts {
		episodes[c.EpisodeNumber] = domain.EpisodeResourceRow{Available: true, ResourceCount: c.Count}
	}
	return &domain.EpisodeAvailability{BangumiID: bangumiID, Episodes: episodes}, nil
}

// group buckets resources by subtitle group, resolving each group's display
// name, preserving first-seen group order.
func (f *Facade) group(ctx context.Context, bangumiID int64, resources []*domain.Resource) (*domain.GroupedResources, error) {
	var order []int64
	byGroup := make(map[int64][]*domain.Resource)
	for _, r := range resources {
		if _, seen := byGroup[r.SubtitleGroupID]; !seen {
			order = append(order, r.SubtitleGroupID)
		}
		byGroup[r.SubtitleGroupID] = append(byGroup[r.SubtitleGroupID], r)
	}

	groups := make([]domain.SubtitleGroupResources, 0, len(order))
	for _, gid := range order {
		name := ""
		g, err := f.groups.GetByID(ctx, gid)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, err
		}
		if g != nil {
			name = g.Name
		}
		groups = append(groups, domain.SubtitleGroupResources{
			SubtitleGroupID:   gid,
			SubtitleGroupName: name,
			Resources:         byGroup[gid],
		})
	}
	return &domain.GroupedResources{BangumiID: bangumiID, Groups: groups}, nil
}

// GetEpisodeResources returns every resource for one episode of a show,
// grouped by subtitle group. Returns nil if bangumiID has never been
// crawled.
func (f *Facade) GetEpisodeResources(ctx context.Context, bangumiID int64, episode int32) (*domain.GroupedResources, error) {
	a, err := f.anime(ctx, bangumiID)
	if err != nil || a == nil {
		return nil, err
	}
	resources, err := f.resources.Filter(ctx, store.ResourceFilter{
		MikanID: a.MikanID, EpisodeNumber: &episode,
	}, 0, 0)
	if err != nil {
		return nil, err
	}
	return f.group(ctx, bangumiID, resources)
}

// GetAnimeResources returns every resource for a show matching the optional
// resolution/subtitle-type filters, paginated and grouped by subtitle
// group. Returns nil if bangumiID has never been crawled.
func (f *Facade) GetAnimeResources(ctx context.Context, q domain.AnimeResourcesQuery) (*domain.GroupedResources, error) {
	a, err := f.anime(ctx, q.BangumiID)
	if err != nil || a == nil {
		return nil, err
	}
	resources, err := f.resources.Filter(ctx, store.ResourceFilter{
		MikanID: a.MikanID, Resolution: q.Resolution, SubtitleType: q.SubtitleType,
	}, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return f.group(ctx, q.BangumiID, resources)
}

// SearchLibrary matches harvested shows by title and returns their bangumi
// ids, paginated.
func (f *Facade) SearchLibrary(ctx context.Context, query string, page, limit int) (*domain.SearchLibraryResult, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	animes, err := f.animes.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := f.animes.CountSearch(ctx, query)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(animes))
	for _, a := range animes {
		ids = append(ids, a.BangumiID)
	}
	return &domain.SearchLibraryResult{
		BangumiIDs: ids,
		Pagination: domain.Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}
