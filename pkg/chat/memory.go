// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"sync"
	"time"
)

// MemoryHistory keeps the history in memory.
type MemoryHistory struct {
	mu       sync.RWMutex
	messages []Message
	max      int
}

// NewMemoryHistory creates an in-memory history holding at most max messages.
func NewMemoryHistory(max int) *MemoryHistory {
	return &MemoryHistory{max: max}
}

// Append implements History.
func (h *MemoryHistory) Append(_ context.Context, msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = trim(append(h.messages, stamp(msgs, time.Now())...), h.max)
	return nil
}

// Messages implements History.
func (h *MemoryHistory) Messages(_ context.Context) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out, nil
}

// Clear implements History.
func (h *MemoryHistory) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	return nil
}
