// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niloux/ikuyo-go/internal/domain"
)

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription to become ready")
	}
}

func TestSubscribeReceivesPublishedUpdate(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 1, Progress: 0.5})

	waitReady(t, sub.Ready)
	updates := sub.Drain()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(1), updates[0].ID)
	assert.InDelta(t, 0.5, updates[0].Progress, 0.0001)
}

func TestPublishCoalescesPerDownloadID(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 1, Progress: 0.1})
	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 1, Progress: 0.2})
	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 2, Progress: 0.9})

	waitReady(t, sub.Ready)
	updates := sub.Drain()
	require.Len(t, updates, 2, "three publishes for two ids should coalesce to two pending updates")

	byID := make(map[int64]domain.ProgressUpdate, len(updates))
	for _, u := range updates {
		byID[u.ID] = u
	}
	assert.InDelta(t, 0.2, byID[1].Progress, 0.0001, "later update for id 1 should win")
	assert.InDelta(t, 0.9, byID[2].Progress, 0.0001)
}

func TestDrainWithNothingPendingReturnsEmpty(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	assert.Empty(t, sub.Drain())
}

func TestMultipleSubscribersEachReceiveUpdates(t *testing.T) {
	bus := NewBus()
	subA := bus.Subscribe()
	subB := bus.Subscribe()
	defer subA.Close()
	defer subB.Close()

	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 5, Progress: 1})

	waitReady(t, subA.Ready)
	waitReady(t, subB.Ready)
	assert.Len(t, subA.Drain(), 1)
	assert.Len(t, subB.Drain(), 1)
}

func TestCloseStopsFurtherDeliveryToThatSubscription(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	sub.Close()

	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 1, Progress: 1})

	select {
	case <-sub.Ready:
		t.Fatal("closed subscription should not receive further notifications")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownDropsFuturePublishes(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Shutdown()
	bus.PublishDownloadProgress(domain.ProgressUpdate{ID: 1, Progress: 1})

	select {
	case <-sub.Ready:
		t.Fatal("publish after shutdown should be dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
