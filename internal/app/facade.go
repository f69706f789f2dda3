// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package app composes the catalog cache, library repositories, crawler
// task store and worker, and download engine into one command surface.
// Every method here mirrors a named command of the external interface: it
// is the single entry point a CLI or any future caller drives the system
// through, in place of an HTTP handler layer.
package app

import (
	"context"
	"time"

	"github.com/niloux/ikuyo-go/internal/domain"
	"github.com/niloux/ikuyo-go/internal/store"
)

// bangumiService is the narrow view of bangumi.Service the facade needs.
type bangumiService interface {
	GetCalendar(ctx context.Context) ([]domain.BangumiWeekday, error)
	GetSubject(ctx context.Context, id int64) (*domain.BangumiSubject, error)
	GetEpisodes(ctx context.Context, q domain.EpisodesQuery) (*domain.BangumiEpisodesPage, error)
	OnSubscribe(ctx context.Context, bangumiID int64) error
	OnUnsubscribe(ctx context.Context, bangumiID int64) error
}

// animeRepo is the narrow view of store.AnimeStore the facade needs.
type animeRepo interface {
	GetByBangumiID(ctx context.Context, bangumiID int64) (*domain.Anime, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*domain.Anime, error)
	CountSearch(ctx context.Context, query string) (int64, error)
}

// resourceRepo is the narrow view of store.ResourceStore the facade needs.
type resourceRepo interface {
	Filter(ctx context.Context, f store.ResourceFilter, limit, offset int) ([]*domain.Resource, error)
	CountByEpisode(ctx context.Context, mikanID int64) ([]store.EpisodeCount, error)
}

// subtitleGroupRepo is the narrow view of store.SubtitleGroupStore the
// facade needs.
type subtitleGroupRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.SubtitleGroup, error)
}

// subscriptionRepo is the narrow view of store.SubscriptionStore the
// facade needs.
type subscriptionRepo interface {
	Create(ctx context.Context, sub *domain.UserSubscription) (int64, error)
	Delete(ctx context.Context, userID string, bangumiID int64) error
	// GetByUserAndBangumi returns (nil, nil) when no row exists — a miss is
	// not an error condition, since existence is the check callers want.
	GetByUserAndBangumi(ctx context.Context, userID string, bangumiID int64) (*domain.UserSubscription, error)
	ListWithSortSearchPage(ctx context.Context, userID string, sort domain.SubscriptionSort, order domain.SubscriptionOrder, search *string, page, limit int) ([]*domain.UserSubscription, int64, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*domain.UserSubscription, error)
}

// crawlerTaskRepo is the narrow view of store.CrawlerTaskStore the facade needs.
type crawlerTaskRepo interface {
	Create(ctx context.Context, taskType domain.CrawlerTaskType, params domain.CrawlerTaskParameters, createdAt int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.CrawlerTask, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*domain.CrawlerTask, error)
}

// crawlerWorker is the narrow view of crawler.Worker the facade needs.
type crawlerWorker interface {
	Wake()
	CancelTask(taskID int64) error
}

// downloadEngine is the narrow view of download.Engine the facade needs.
type downloadEngine interface {
	Start(ctx context.Context, task domain.StartDownloadTask) (int64, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64, deleteFiles bool) error
	List(ctx context.Context) ([]*domain.DownloadTask, error)
	GetDownloadPath(ctx context.Context, id int64) (string, error)
}

// Facade is the command surface. Construct one with New once every
// collaborator is wired and reuse it for the life of the process.
type Facade struct {
	catalog bangumiService

	animes    animeRepo
	resources resourceRepo
	groups    subtitleGroupRepo
	subs      subscriptionRepo
	tasks     crawlerTaskRepo
	worker    crawlerWorker
	downloads downloadEngine

	downloadFolder string
	nowFunc        func() int64
}

// New builds a Facade. downloadFolder is the resolved default directory
// get_download_folder reports, independent of any one task's save path.
func New(
	catalog bangumiService,
	animes *store.AnimeStore,
	resources *store.ResourceStore,
	groups *store.SubtitleGroupStore,
	subs *store.SubscriptionStore,
	tasks *store.CrawlerTaskStore,
	worker crawlerWorker,
	downloads downloadEngine,
	downloadFolder string,
) *Facade {
	return &Facade{
		catalog:        catalog,
		animes:         animes,
		resources:      resources,
		groups:         groups,
		subs:           subs,
		tasks:          tasks,
		worker:         worker,
		downloads:      downloads,
		downloadFolder: downloadFolder,
		nowFunc:        func() int64 { return time.Now().UnixMilli() },
	}
}

func (f *Facade) now() int64 { return f.nowFunc() }
