// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/riskcrew/pkg/errors"
)

// CLIError wraps a typed error with a hint for the operator.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error.
func (e *CLIError) Unwrap() error { return e.Err }

// hintFor suggests a fix for the common failure codes.
func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeUnavailable, errors.CodeLLMError:
		return "check that Ollama is running (llm.base_url) or use --set llm.provider=mock"
	case errors.CodeEmbedding:
		return "check that the embedding model is pulled (embedder.model) or use --set embedder.provider=hash"
	case errors.CodeVectorStore:
		return "check that Qdrant is reachable (vector.qdrant_addr) or use --set vector.provider=memory"
	case errors.CodeStorage:
		return "check that store.sqlite_path and chat.history_path are writable"
	case errors.CodeNotFound:
		return "run 'riskcrew search' or open the dashboard to list known projects"
	case errors.CodeTimeout:
		return "raise llm.timeout or crew.max_iterations"
	case errors.CodeInvalidInput:
		return "run 'riskcrew help' for usage information"
	default:
		return ""
	}
}

// asCLIError converts err, adding a hint from its code.
func asCLIError(err error) *CLIError {
	var ce *CLIError
	if stderrors.As(err, &ce) && ce.Err != nil {
		return ce
	}
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		// Flag parsing and configuration errors are reported verbatim.
		return NewCLIError(errors.New(errors.CodeInternal, err.Error(), nil), "")
	}
	return NewCLIError(typed, hintFor(typed.Code))
}

func detail(e *errors.Error) string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// printError prints err as text or as a JSON object.
func printError(w io.Writer, err error, asJSON bool) {
	ce := asCLIError(err)
	if asJSON {
		payload := map[string]map[string]string{"error": {
			"code":    string(ce.Err.Code),
			"message": detail(ce.Err),
		}}
		if ce.Hint != "" {
			payload["error"]["hint"] = ce.Hint
		}
		_ = json.NewEncoder(w).Encode(payload)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", ce.Err.Code, detail(ce.Err))
	if ce.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", ce.Hint)
	}
}
