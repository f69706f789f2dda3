// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package events is a best-effort, transport-agnostic fan-out of
// download_progress updates. It owns no HTTP/SSE encoding; a caller wanting
// to stream updates to a browser or CLI subscribes and renders the events
// itself.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/niloux/ikuyo-go/internal/domain"
)

// subscriber coalesces pending updates per download id: a burst of updates
// for the same task between two reads of a slow consumer collapses to the
// latest one, the same way a slow SSE client never backs up a fast producer.
type subscriber struct {
	mu      sync.Mutex
	pending map[int64]domain.ProgressUpdate
	notify  chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{
		pending: make(map[int64]domain.ProgressUpdate),
		notify:  make(chan struct{}, 1),
	}
}

func (s *subscriber) enqueue(update domain.ProgressUpdate) {
	s.mu.Lock()
	s.pending[update.ID] = update
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// drain returns every update pending since the last drain and clears it.
func (s *subscriber) drain() []domain.ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]domain.ProgressUpdate, 0, len(s.pending))
	for _, u := range s.pending {
		out = append(out, u)
	}
	s.pending = make(map[int64]domain.ProgressUpdate)
	return out
}

// Bus is a mutex-guarded subscriber registry. The zero value is not usable;
// construct with NewBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	closing     atomic.Bool
}

// NewBus returns an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[uint64]*subscriber)}
}

// Subscription is a live registration on a Bus. Ready fires whenever one or
// more updates are pending; call Drain to collect them.
type Subscription struct {
	id    uint64
	bus   *Bus
	sub   *subscriber
	Ready <-chan struct{}
}

// Drain returns every update queued for this subscription since the last
// call, deduplicated per download id to the most recent value.
func (s *Subscription) Drain() []domain.ProgressUpdate {
	return s.sub.drain()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new subscription. Callers should range over Ready
// and call Drain after each signal, until Close.
func (b *Bus) Subscribe() *Subscription {
	sub := newSubscriber()
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, bus: b, sub: sub, Ready: sub.notify}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// PublishDownloadProgress fans update out to every live subscription.
// Delivery is best-effort and never blocks on a slow consumer: enqueue
// coalesces per download id instead of growing an unbounded queue.
func (b *Bus) PublishDownloadProgress(update domain.ProgressUpdate) {
	if b.closing.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		sub.enqueue(update)
	}
}

// Shutdown marks the bus closed; further publishes are dropped. Existing
// subscriptions are left registered so callers can drain whatever is still
// pending before closing their own consumer loop.
func (b *Bus) Shutdown() {
	b.closing.Store(true)
}
