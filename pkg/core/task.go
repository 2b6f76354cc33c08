// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"time"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task tracks one execution of a crew task.
type Task struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	AssignedTo string     `json:"agent"`
	Status     TaskStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
}

// NewTask creates a pending task.
func NewTask(runID, id, assignedTo string) *Task {
	return &Task{
		ID:         id,
		RunID:      runID,
		AssignedTo: assignedTo,
		Status:     TaskStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Start marks the task as running.
func (t *Task) Start() {
	t.Status = TaskStatusRunning
	t.StartedAt = time.Now().UTC()
}

// Complete marks the task as completed with its output.
func (t *Task) Complete(output string) {
	t.Status = TaskStatusCompleted
	t.Output = output
	t.FinishedAt = time.Now().UTC()
}

// Fail marks the task as failed.
func (t *Task) Fail(msg string) {
	t.Status = TaskStatusFailed
	t.Error = msg
	t.FinishedAt = time.Now().UTC()
}

// Cancel marks the task as cancelled.
func (t *Task) Cancel() {
	t.Status = TaskStatusCancelled
	t.FinishedAt = time.Now().UTC()
}

// Duration is the time between start and finish.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Done reports whether the task reached a final state.
func (t *Task) Done() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
