// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat keeps the assistant conversation shown in the UI.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles used in the chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxHistory is the number of messages kept when no limit is set.
const DefaultMaxHistory = 50

// Message is a single chat turn.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Project   string    `json:"project,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History stores the chat turns in order, oldest first.
type History interface {
	// Append adds messages and trims the history to its maximum size.
	Append(ctx context.Context, msgs ...Message) error
	// Messages returns the stored messages, oldest first.
	Messages(ctx context.Context) ([]Message, error)
	// Clear removes every message.
	Clear(ctx context.Context) error
}

func stamp(msgs []Message, now time.Time) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m
	}
	return out
}

func trim(msgs []Message, max int) []Message {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
