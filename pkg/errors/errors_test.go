// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(CodeVectorStore, "upsert failed", cause)

	if e.Code != CodeVectorStore {
		t.Errorf("expected CodeVectorStore, got %v", e.Code)
	}
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to reach the cause")
	}
	if e.Error() != "[VECTOR_STORE_ERROR] upsert failed: connection refused" {
		t.Errorf("unexpected message %q", e.Error())
	}
}

func TestWithContext(t *testing.T) {
	e := New(CodeToolFailure, "tool failed", nil).
		WithContext("tool", "risk_analysis").
		WithContext("project", "Cloud Migration")

	if e.Context["tool"] != "risk_analysis" {
		t.Errorf("expected tool context")
	}
	if e.Context["project"] != "Cloud Migration" {
		t.Errorf("expected project context")
	}
}

func TestWithRecoverable(t *testing.T) {
	e := New(CodeLLMError, "ollama unavailable", nil)
	if e.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}
	e.WithRecoverable(true)
	if !e.Recoverable {
		t.Errorf("expected recoverable after WithRecoverable(true)")
	}
}

func TestStatusCode(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeNotFound:     http.StatusNotFound,
		CodeInvalidInput: http.StatusBadRequest,
		CodeTimeout:      http.StatusRequestTimeout,
		CodeUnavailable:  http.StatusServiceUnavailable,
		CodeLLMError:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := New(code, "x", nil).StatusCode(); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestAsWrapsForeignErrors(t *testing.T) {
	if As(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	plain := errors.New("boom")
	e := As(plain)
	if e.Code != CodeInternal {
		t.Errorf("expected CodeInternal, got %s", e.Code)
	}

	wrapped := fmt.Errorf("outer: %w", NotFound("project", "p9"))
	if got := As(wrapped); got.Code != CodeNotFound {
		t.Errorf("expected NOT_FOUND through wrapping, got %s", got.Code)
	}
	if !IsCode(wrapped, CodeNotFound) {
		t.Errorf("expected IsCode to match through wrapping")
	}
	if CodeOf(plain) != CodeInternal {
		t.Errorf("expected CodeInternal for plain error")
	}
}

func TestMarshalJSON(t *testing.T) {
	e := InvalidInput("probability %v out of range", 1.5).WithContext("field", "probability")
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["code"] != "INVALID_INPUT" {
		t.Errorf("unexpected code %v", out["code"])
	}
	if out["message"] != "probability 1.5 out of range" {
		t.Errorf("unexpected message %v", out["message"])
	}
}
