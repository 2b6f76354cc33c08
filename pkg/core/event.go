// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies a semantic event emitted by agents and crews.
type EventType string

const (
	EventCrewStarted   EventType = "crew.run.started"
	EventCrewCompleted EventType = "crew.run.completed"
	EventCrewFailed    EventType = "crew.run.failed"
	EventTaskStarted   EventType = "crew.task.started"
	EventTaskCompleted EventType = "crew.task.completed"
	EventTaskFailed    EventType = "crew.task.failed"
	EventToolCalled    EventType = "agent.tool.called"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// LogEmitter writes events to a logger at debug level.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements EventEmitter.
func (l LogEmitter) Emit(ctx context.Context, event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, string(event.Type),
		slog.String("run_id", event.RunID),
		slog.String("agent", event.Agent),
		slog.String("task_id", event.TaskID),
	)
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, runID, agent, taskID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Agent:     agent,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
