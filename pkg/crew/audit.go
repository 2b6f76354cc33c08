// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/riskcrew/pkg/core"
)

// AuditEvent records the outcome of one task of a crew run.
type AuditEvent struct {
	RunID      string    `json:"run_id"`
	TaskID     string    `json:"task_id"`
	Agent      string    `json:"agent"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// AuditStore persists task audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries.
type AuditFilter struct {
	RunID  string
	TaskID string
	Status string
	Limit  int
}

func auditEvent(task *core.Task) AuditEvent {
	return AuditEvent{
		RunID:      task.RunID,
		TaskID:     task.ID,
		Agent:      task.AssignedTo,
		Status:     string(task.Status),
		Output:     task.Output,
		Error:      task.Error,
		StartedAt:  normalizeAuditTime(task.StartedAt),
		FinishedAt: normalizeAuditTime(task.FinishedAt),
	}
}

func (f AuditFilter) match(ev AuditEvent) bool {
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	if f.TaskID != "" && ev.TaskID != f.TaskID {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends an audit event.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in insertion order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// normalizeAuditTime ensures timestamps are in UTC.
func normalizeAuditTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
