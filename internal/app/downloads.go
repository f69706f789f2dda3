// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package app

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

// StartDownload adds a new magnet to the download engine and returns its
// handle id.
func (f *Facade) StartDownload(ctx context.Context, task domain.StartDownloadTask) (int64, error) {
	return f.downloads.Start(ctx, task)
}

// PauseDownload stops data transfer for a download without removing it.
func (f *Facade) PauseDownload(ctx context.Context, id int64) error {
	return f.downloads.Pause(ctx, id)
}

// ResumeDownload resumes data transfer for a paused download.
func (f *Facade) ResumeDownload(ctx context.Context, id int64) error {
	return f.downloads.Resume(ctx, id)
}

// RemoveDownload drops a download's in-memory handle and deletes its row,
// optionally deleting downloaded data from disk.
func (f *Facade) RemoveDownload(ctx context.Context, id int64, deleteFiles bool) error {
	return f.downloads.Remove(ctx, id, deleteFiles)
}

// ListDownloads returns every download with status other than deleted,
// newest first. Serves both list_downloads and fetch_all_downloads.
func (f *Facade) ListDownloads(ctx context.Context) ([]*domain.DownloadTask, error) {
	return f.downloads.List(ctx)
}

// GetDownloadPath returns one download's destination file path.
func (f *Facade) GetDownloadPath(ctx context.Context, id int64) (string, error) {
	return f.downloads.GetDownloadPath(ctx, id)
}

// GetDownloadFolder returns the configured default directory new downloads
// are saved under, independent of any one task's save path.
func (f *Facade) GetDownloadFolder() string {
	return f.downloadFolder
}

// OpenFilePath opens path with the OS's registered default handler for it,
// asynchronously: the caller is not blocked on whatever application the OS
// hands the path to.
func (f *Facade) OpenFilePath(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", path)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return apperr.OtherDomain(fmt.Sprintf("open file path: %v", err))
	}
	return nil
}
