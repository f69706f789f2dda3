// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// AnimeStatus is the broadcast lifecycle of a show.
type AnimeStatus string

const (
	AnimeStatusUnknown  AnimeStatus = "unknown"
	AnimeStatusAiring   AnimeStatus = "airing"
	AnimeStatusFinished AnimeStatus = "finished"
)

// Anime is a show harvested from the release tracker, keyed by its upstream
// mikan_id. bangumi_id is 0 until the detail page links a bgm.tv subject.
type Anime struct {
	MikanID         int64       `json:"mikanId"`
	BangumiID       int64       `json:"bangumiId"`
	Title           string      `json:"title"`
	OriginalTitle   *string     `json:"originalTitle,omitempty"`
	BroadcastDay    *string     `json:"broadcastDay,omitempty"`
	BroadcastStart  *int64      `json:"broadcastStart,omitempty"`
	OfficialWebsite *string     `json:"officialWebsite,omitempty"`
	BangumiURL      *string     `json:"bangumiUrl,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Status          AnimeStatus `json:"status,omitempty"`
	CreatedAt       int64       `json:"createdAt"`
	UpdatedAt       int64       `json:"updatedAt"`
}

// SubtitleGroup is a fansub team identified by its upstream numeric id.
type SubtitleGroup struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	LastUpdate *int64 `json:"lastUpdate,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// Resource is a single release row: one subtitle group's publication of one
// episode of one show. Upsert key is MagnetHash.
type Resource struct {
	ID              int64   `json:"id"`
	MikanID         int64   `json:"mikanId"`
	SubtitleGroupID int64   `json:"subtitleGroupId"`
	EpisodeNumber   *int32  `json:"episodeNumber,omitempty"`
	Title           string  `json:"title"`
	FileSize        *string `json:"fileSize,omitempty"`
	Resolution      *string `json:"resolution,omitempty"`
	SubtitleType    *string `json:"subtitleType,omitempty"`
	MagnetURL       *string `json:"magnetUrl,omitempty"`
	TorrentURL      *string `json:"torrentUrl,omitempty"`
	MagnetHash      *string `json:"magnetHash,omitempty"`
	ReleaseDate     *int64  `json:"releaseDate,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
}
