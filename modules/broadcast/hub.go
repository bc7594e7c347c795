// Package broadcast keeps the registry of live observers and fans task events out to them.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"go.uber.org/zap"
)

// Hub is the registry of observers. It is safe for concurrent use.
type Hub struct {
	observers map[string]*Observer
	mu        sync.RWMutex
	logger    *zap.Logger

	queued  atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// HubStats summarizes fan-out activity.
type HubStats struct {
	Observers int    `json:"observers"`
	Open      int    `json:"open"`
	Queued    uint64 `json:"queued"`
	Dropped   uint64 `json:"dropped"`
	Skipped   uint64 `json:"skipped"`
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		observers: make(map[string]*Observer),
		logger:    logger,
	}
}

// Register adds o. Registering the same observer twice has no effect.
func (h *Hub) Register(o *Observer) {
	h.mu.Lock()
	if _, ok := h.observers[o.ID]; ok {
		h.mu.Unlock()
		return
	}
	h.observers[o.ID] = o
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Info("observer connected", zap.String("observer", o.ID), zap.Int("observers", count))
}

// Unregister removes o. Unknown observers are ignored.
func (h *Hub) Unregister(o *Observer) {
	h.mu.Lock()
	if cur, ok := h.observers[o.ID]; !ok || cur != o {
		h.mu.Unlock()
		return
	}
	delete(h.observers, o.ID)
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Info("observer disconnected", zap.String("observer", o.ID), zap.Int("observers", count))
}

// Broadcast encodes evt once and queues it for every open observer. Observers
// in any other state are skipped but stay registered; a full outbox drops the
// event for that observer only. It returns the number of observers queued.
func (h *Hub) Broadcast(evt task.Event) int {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", string(evt.Type)), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	queued := 0
	for _, o := range targets {
		if o.State() != StateOpen {
			h.skipped.Add(1)
			continue
		}
		if !o.enqueue(data) {
			h.dropped.Add(1)
			h.logger.Warn("observer outbox full, event dropped",
				zap.String("observer", o.ID), zap.String("type", string(evt.Type)))
			continue
		}
		queued++
	}
	h.queued.Add(uint64(queued))
	return queued
}

// Notify broadcasts evt. It lets the hub serve directly as the board's notifier.
func (h *Hub) Notify(_ context.Context, evt task.Event) {
	h.Broadcast(evt)
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Stats returns fan-out counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	total, open := len(h.observers), 0
	for _, o := range h.observers {
		if o.State() == StateOpen {
			open++
		}
	}
	h.mu.RUnlock()

	return HubStats{
		Observers: total,
		Open:      open,
		Queued:    h.queued.Load(),
		Dropped:   h.dropped.Load(),
		Skipped:   h.skipped.Load(),
	}
}

// CloseAll closes every connection and then its observer, and empties the
// registry. Closing the connection first unblocks a writer stuck on a stalled peer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]*Observer)
	h.mu.Unlock()

	for _, o := range observers {
		if err := o.conn.Close(); err != nil {
			h.logger.Debug("error closing observer connection", zap.String("observer", o.ID), zap.Error(err))
		}
		o.Close()
	}
}
