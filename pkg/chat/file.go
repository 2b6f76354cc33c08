// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileHistory persists the history as a JSON array in a single file.
// A missing file is an empty history.
type FileHistory struct {
	mu   sync.Mutex
	path string
	max  int
}

// NewFileHistory creates a history stored at path holding at most max messages.
func NewFileHistory(path string, max int) (*FileHistory, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create chat history directory: %w", err)
		}
	}
	return &FileHistory{path: path, max: max}, nil
}

// Append implements History.
func (f *FileHistory) Append(_ context.Context, msgs ...Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load()
	if err != nil {
		return err
	}
	messages = trim(append(messages, stamp(msgs, time.Now())...), f.max)
	return f.save(messages)
}

// Messages implements History.
func (f *FileHistory) Messages(_ context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load()
	if err != nil {
		return nil, err
	}
	return trim(messages, f.max), nil
}

// Clear implements History.
func (f *FileHistory) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileHistory) load() ([]Message, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse chat history: %w", err)
	}
	return messages, nil
}

func (f *FileHistory) save(messages []Message) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat history: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
