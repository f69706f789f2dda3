// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// DownloadStatus mirrors the torrent session handle's lifecycle onto the
// durable DownloadTask row.
type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusPaused      DownloadStatus = "paused"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
	DownloadStatusDeleted     DownloadStatus = "deleted"
)

// DownloadTask is one torrent tracked by the download engine. ID equals the
// torrent session handle identifier for the lifetime of the row.
type DownloadTask struct {
	ID            int64          `json:"id"`
	MagnetURL     string         `json:"magnetUrl"`
	SavePath      *string        `json:"savePath,omitempty"`
	Title         string         `json:"title"`
	Status        DownloadStatus `json:"status"`
	BangumiID     int64          `json:"bangumiId"`
	ResourceID    int64          `json:"resourceId"`
	EpisodeNumber int32          `json:"episodeNumber"`
	Name          string         `json:"name"`
	NameCN        string         `json:"nameCn"`
	Cover         string         `json:"cover"`
	TotalSize     int64          `json:"totalSize"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
	ErrorMsg      *string        `json:"errorMsg,omitempty"`
}

// StartDownloadTask is the input to start_download.
type StartDownloadTask struct {
	MagnetURL     string
	SavePath      *string
	BangumiID     int64
	ResourceID    int64
	EpisodeNumber int32
	Name          string
	NameCN        string
	Cover         string
	TotalSize     int64
}

// ProgressUpdate is the payload of a best-effort download_progress event.
type ProgressUpdate struct {
	ID            int64          `json:"id"`
	TotalBytes    int64          `json:"totalBytes"`
	Progress      float64        `json:"progress"`
	Speed         float64        `json:"speed"`
	TimeRemaining *string        `json:"timeRemaining,omitempty"`
	Status        DownloadStatus `json:"status"`
	ErrorMsg      *string        `json:"errorMsg,omitempty"`
}
