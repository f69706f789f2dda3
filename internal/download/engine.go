// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package download wraps an anacrolix/torrent session and keeps the
// download_tasks table in sync with it: each active row is jointly
// referenced by the store and an in-memory torrent handle, linked by id.
package download

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/niloux/ikuyo-go/internal/apperr"
	"github.com/niloux/ikuyo-go/internal/domain"
)

const (
	defaultReconcileFanout = 8
	pauseResumeQuiesce     = 50 * time.Millisecond
	removeQuiesce          = 50 * time.Millisecond
)

// taskStore is the narrow view of store.DownloadTaskStore this engine needs.
type taskStore interface {
	Create(ctx context.Context, d *domain.DownloadTask) error
	GetByID(ctx context.Context, id int64) (*domain.DownloadTask, error)
	UpdateStatus(ctx context.Context, id int64, status domain.DownloadStatus, totalSize int64, errMsg *string, updatedAt int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*domain.DownloadTask, error)
	ListActive(ctx context.Context) ([]*domain.DownloadTask, error)
	ListNotCompleted(ctx context.Context) ([]*domain.DownloadTask, error)
}

// progressPublisher is the narrow view of the event bus this engine needs.
// Delivery is best-effort: a publish failure is logged, never fatal.
type progressPublisher interface {
	PublishDownloadProgress(update domain.ProgressUpdate)
}

// noopPublisher drops every update; used when no bus is wired.
type noopPublisher struct{}

func (noopPublisher) PublishDownloadProgress(domain.ProgressUpdate) {}

// torrentHandle is the narrow view of *torrent.Torrent the engine needs;
// extracted so progress derivation can be tested without a live session.
type torrentHandle interface {
	GotInfo() <-chan struct{}
	Info() *metainfo.Info
	BytesCompleted() int64
	BytesMissing() int64
	DownloadAll()
	AllowDataDownload()
	DisallowDataDownload()
	Drop()
}

// handle is the in-memory state tracked alongside a store row. anacrolix's
// Torrent carries no "paused" flag of its own (pause is emulated by
// disallowing data transfer), so pausedness and the speed sample window are
// tracked here.
type handle struct {
	torrent torrentHandle
	paused  atomic.Bool

	sampleMu   sync.Mutex
	lastBytes  int64
	lastSample time.Time

	// peakCompleted guards against the transient dip anacrolix reports while
	// re-verifying pieces from disk after a restart recovery re-add.
	peakCompleted atomic.Int64
}

// Engine owns the torrent client and the id->handle map. Every operation
// also mutates the matching store row; the two stay linked by id for the
// life of a task.
type Engine struct {
	client  *torrent.Client
	store   taskStore
	publish progressPublisher
	fanout  int
	nowFunc func() int64

	mu      sync.RWMutex
	handles map[int64]*handle

	nextID atomic.Int64

	// active gates event emission only; reconciliation still persists a
	// changed status regardless. Defaults to true.
	active atomic.Bool
}

// Config configures the underlying torrent client.
type Config struct {
	DataDir           string
	ReconcileFanout   int
	ProgressPublisher progressPublisher
}

// NewEngine starts the torrent client and returns an Engine with no active
// handles yet; call Restore to re-add magnets for tasks left active by a
// prior run.
func NewEngine(cfg Config, tasks taskStore) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, apperr.DownloadTaskFailedf("create download dir: %v", err)
	}

	clientCfg := torrent.NewDefaultClientConfig()
	clientCfg.DataDir = cfg.DataDir

	client, err := torrent.NewClient(clientCfg)
	if err != nil {
		return nil, apperr.DownloadTaskFailed(err)
	}

	fanout := cfg.ReconcileFanout
	if fanout <= 0 {
		fanout = defaultReconcileFanout
	}

	publisher := cfg.ProgressPublisher
	if publisher == nil {
		publisher = noopPublisher{}
	}

	eng := &Engine{
		client:  client,
		store:   tasks,
		publish: publisher,
		fanout:  fanout,
		nowFunc: func() int64 { return time.Now().UnixMilli() },
		handles: make(map[int64]*handle),
	}
	eng.active.Store(true)
	return eng, nil
}

func (e *Engine) now() int64 { return e.nowFunc() }

// SetActive toggles whether reconciliation emits download_progress events.
// Reconciliation keeps persisting status changes regardless; only event
// emission is suppressed while inactive (e.g. the UI window is hidden).
func (e *Engine) SetActive(active bool) {
	e.active.Store(active)
}

// Close shuts down the torrent client. Handles are not individually dropped;
// closing the client tears down every torrent at once.
func (e *Engine) Close() {
	e.client.Close()
}

// Restore re-adds a magnet for every row left in a non-terminal state by a
// prior run, keyed under the row's own id so the handle stays addressable
// the same way it was before the restart. A torrent already present under
// that id (anacrolix dedupes by magnet/infohash, not failing the add) is
// left alone — the equivalent of the duplicate-add-errors-ignored rule.
func (e *Engine) Restore(ctx context.Context) error {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return err
	}

	var maxID int64
	for _, task := range active {
		if task.ID > maxID {
			maxID = task.ID
		}
		if task.MagnetURL == "" {
			continue
		}

		t, err := e.client.AddMagnet(task.MagnetURL)
		if err != nil {
			log.Warn().Err(err).Int64("id", task.ID).Msg("download: restore add magnet failed")
			continue
		}

		h := &handle{torrent: t, lastSample: time.Now()}
		if task.Status == domain.DownloadStatusPaused {
			h.paused.Store(true)
			t.DisallowDataDownload()
		} else {
			t.AllowDataDownload()
			go awaitInfoThenDownloadAll(t)
		}

		e.mu.Lock()
		e.handles[task.ID] = h
		e.mu.Unlock()
	}

	// Seed the id counter from every existing row, not just the active ones,
	// so a newly started task never collides with a completed/failed one.
	all, err := e.store.List(ctx)
	if err != nil {
		return err
	}
	for _, task := range all {
		if task.ID > maxID {
			maxID = task.ID
		}
	}
	e.nextID.Store(maxID)
	return nil
}

func awaitInfoThenDownloadAll(t torrentHandle) {
	<-t.GotInfo()
	t.DownloadAll()
}

// Start adds task's magnet to the session and creates its store row. The
// returned id is the handle id, stable for the row's lifetime.
func (e *Engine) Start(ctx context.Context, task domain.StartDownloadTask) (int64, error) {
	t, err := e.client.AddMagnet(task.MagnetURL)
	if err != nil {
		return 0, apperr.DownloadTaskFailed(err)
	}

	id := e.nextID.Add(1)
	h := &handle{torrent: t, lastSample: time.Now()}
	t.AllowDataDownload()
	go awaitInfoThenDownloadAll(t)

	e.mu.Lock()
	e.handles[id] = h
	e.mu.Unlock()

	now := e.now()
	row := &domain.DownloadTask{
		ID:            id,
		MagnetURL:     task.MagnetURL,
		SavePath:      task.SavePath,
		Title:         task.Name,
		Status:        domain.DownloadStatusPending,
		BangumiID:     task.BangumiID,
		ResourceID:    task.ResourceID,
		EpisodeNumber: task.EpisodeNumber,
		Name:          task.Name,
		NameCN:        task.NameCN,
		Cover:         task.Cover,
		TotalSize:     task.TotalSize,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Create(ctx, row); err != nil {
		e.mu.Lock()
		delete(e.handles, id)
		e.mu.Unlock()
		t.Drop()
		return 0, err
	}
	return id, nil
}

func (e *Engine) getHandle(id int64) (*handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handles[id]
	return h, ok
}

// Pause disallows further data transfer on id's handle and marks the row
// paused. The quiesce sleep gives in-flight peer/writer goroutines a beat to
// settle before the caller treats the pause as complete.
func (e *Engine) Pause(ctx context.Context, id int64) error {
	h, ok := e.getHandle(id)
	if !ok {
		return apperr.NotFound("download_task", id)
	}
	h.torrent.DisallowDataDownload()
	h.paused.Store(true)
	time.Sleep(pauseResumeQuiesce)
	return e.store.UpdateStatus(ctx, id, domain.DownloadStatusPaused, 0, nil, e.now())
}

// Resume re-allows data transfer on id's handle and marks the row
// downloading.
func (e *Engine) Resume(ctx context.Context, id int64) error {
	h, ok := e.getHandle(id)
	if !ok {
		return apperr.NotFound("download_task", id)
	}
	h.paused.Store(false)
	h.torrent.AllowDataDownload()
	if torrentInfoReady(h.torrent) {
		h.torrent.DownloadAll()
	} else {
		go awaitInfoThenDownloadAll(h.torrent)
	}
	time.Sleep(pauseResumeQuiesce)
	return e.store.UpdateStatus(ctx, id, domain.DownloadStatusDownloading, 0, nil, e.now())
}

// Remove drops the handle, optionally deleting the downloaded data from
// disk, and deletes the store row.
func (e *Engine) Remove(ctx context.Context, id int64, deleteFiles bool) error {
	var downloadPath string
	if deleteFiles {
		if path, err := e.GetDownloadPath(ctx, id); err == nil {
			downloadPath = path
		}
	}

	if h, ok := e.getHandle(id); ok {
		h.torrent.Drop()
		e.mu.Lock()
		delete(e.handles, id)
		e.mu.Unlock()
	}
	time.Sleep(removeQuiesce)

	if deleteFiles && downloadPath != "" {
		if err := os.RemoveAll(downloadPath); err != nil {
			log.Warn().Err(err).Int64("id", id).Msg("download: failed to delete downloaded files")
		}
	}

	return e.store.Delete(ctx, id)
}

// List returns every row with status != deleted.
func (e *Engine) List(ctx context.Context) ([]*domain.DownloadTask, error) {
	return e.store.List(ctx)
}

// GetDownloadPath joins the row's save path and title into a filesystem
// path.
func (e *Engine) GetDownloadPath(ctx context.Context, id int64) (string, error) {
	row, err := e.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	base := ""
	if row.SavePath != nil {
		base = *row.SavePath
	}
	return filepath.Join(base, row.Title), nil
}

func torrentInfoReady(t torrentHandle) bool {
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

// RunReconciliation ticks once a second, reconciling every non-completed
// row's handle stats into the store and emitting a best-effort
// download_progress event for each, fanned out at bounded concurrency.
func (e *Engine) RunReconciliation(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcileTick(ctx)
		}
	}
}

func (e *Engine) reconcileTick(ctx context.Context) {
	rows, err := e.store.ListNotCompleted(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("download: failed to list active tasks for reconciliation")
		return
	}
	if len(rows) == 0 {
		return
	}

	eg, egCtx := errgroup.WithContext(context.Background())
	eg.SetLimit(e.fanout)
	for _, row := range rows {
		row := row
		eg.Go(func() error {
			e.reconcileOne(egCtx, row)
			return nil
		})
	}
	_ = eg.Wait()
}

func (e *Engine) reconcileOne(ctx context.Context, row *domain.DownloadTask) {
	h, ok := e.getHandle(row.ID)
	if !ok {
		return
	}

	update := e.deriveProgress(row.ID, h)
	if e.active.Load() {
		e.publish.PublishDownloadProgress(update)
	}

	if update.Status == row.Status {
		return
	}
	if err := e.store.UpdateStatus(ctx, row.ID, update.Status, update.TotalBytes, update.ErrorMsg, e.now()); err != nil {
		log.Warn().Err(err).Int64("id", row.ID).Msg("download: failed to persist reconciled status")
	}
}

// deriveProgress maps a torrent handle's current stats onto a ProgressUpdate:
// finished -> completed; paused -> paused; initializing (no metadata yet) ->
// pending; everything else while live -> downloading. It never derives
// failed: torrentHandle exposes no error state, so ErrorMsg is never set here.
func (e *Engine) deriveProgress(id int64, h *handle) domain.ProgressUpdate {
	t := h.torrent

	if h.paused.Load() {
		return domain.ProgressUpdate{ID: id, Status: domain.DownloadStatusPaused}
	}

	if !torrentInfoReady(t) {
		return domain.ProgressUpdate{ID: id, Status: domain.DownloadStatusPending}
	}

	total := t.Info().TotalLength()
	completed := t.BytesCompleted()

	// anacrolix re-verifies pieces from disk after a restore add, which can
	// transiently report fewer completed bytes than were previously
	// observed; never regress below the high-water mark.
	if completed > h.peakCompleted.Load() {
		h.peakCompleted.Store(completed)
	} else {
		completed = h.peakCompleted.Load()
	}

	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total)
	}

	speed := h.sampleSpeed(completed)

	status := domain.DownloadStatusDownloading
	var timeRemaining *string
	if total > 0 && (completed >= total || t.BytesMissing() == 0) {
		status = domain.DownloadStatusCompleted
	} else if speed > 0 {
		remainingBytes := total - completed
		remainingSec := float64(remainingBytes) / (speed * 1e6 / 8)
		s := formatDuration(remainingSec)
		timeRemaining = &s
	}

	return domain.ProgressUpdate{
		ID:            id,
		TotalBytes:    total,
		Progress:      progress,
		Speed:         speed,
		TimeRemaining: timeRemaining,
		Status:        status,
	}
}

// sampleSpeed returns the download speed in Mbps since the last sample.
func (h *handle) sampleSpeed(completed int64) float64 {
	h.sampleMu.Lock()
	defer h.sampleMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(h.lastSample).Seconds()
	delta := completed - h.lastBytes
	h.lastBytes = completed
	h.lastSample = now

	if elapsed <= 0 || delta <= 0 {
		return 0
	}
	bytesPerSec := float64(delta) / elapsed
	return bytesPerSec * 8 / 1e6
}

func formatDuration(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "0s"
	}
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return strconv.Itoa(s) + "s"
}
