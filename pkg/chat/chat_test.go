// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestFileHistoryMissingFile(t *testing.T) {
	h, err := NewFileHistory(filepath.Join(t.TempDir(), "chat_history.json"), 50)
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := h.Messages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d", len(msgs))
	}
}

func TestFileHistoryPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chat_history.json")

	h, err := NewFileHistory(path, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Append(ctx,
		Message{Role: RoleUser, Content: "What are the top risks?", Project: "Cloud Migration"},
		Message{Role: RoleAssistant, Content: "Budget overrun is the top risk."},
	); err != nil {
		t.Fatal(err)
	}

	reopened, _ := NewFileHistory(path, 50)
	msgs, err := reopened.Messages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected order: %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[0].Timestamp.IsZero() {
		t.Errorf("expected id and timestamp to be set")
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected history file to be removed")
	}
	if err := reopened.Clear(ctx); err != nil {
		t.Errorf("clearing twice should not fail: %v", err)
	}
}

func TestFileHistoryKeepsLastMessages(t *testing.T) {
	ctx := context.Background()
	h, _ := NewFileHistory(filepath.Join(t.TempDir(), "h.json"), 4)
	for i := 0; i < 6; i++ {
		if err := h.Append(ctx, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, _ := h.Messages(ctx)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "m2" || msgs[3].Content != "m5" {
		t.Errorf("expected the newest messages, got %s..%s", msgs[0].Content, msgs[3].Content)
	}
}

func TestFileHistoryCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	h, _ := NewFileHistory(path, 10)
	if _, err := h.Messages(context.Background()); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(0)
	for i := 0; i < DefaultMaxHistory+5; i++ {
		_ = h.Append(ctx, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	msgs, _ := h.Messages(ctx)
	if len(msgs) != DefaultMaxHistory {
		t.Fatalf("expected %d messages, got %d", DefaultMaxHistory, len(msgs))
	}
	if msgs[0].Content != "m5" {
		t.Errorf("expected oldest kept message m5, got %s", msgs[0].Content)
	}

	_ = h.Clear(ctx)
	msgs, _ = h.Messages(ctx)
	if len(msgs) != 0 {
		t.Errorf("expected empty history after clear")
	}
}
