// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package vector provides the vector memory used for semantic search over
// projects, risks, market signals and reports.
package vector

import (
	"context"
	"fmt"
)

// Store defines the interface for a vector database.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, dim uint64) error
	// Upsert adds or replaces points by id.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the points nearest to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error)
	// Get returns the points with the given ids; unknown ids are skipped.
	Get(ctx context.Context, collection string, ids []string) ([]Point, error)
	// Scroll lists points matching filter without a query vector.
	Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]Point, error)
}

// Filter is an equality match on payload keys. All keys must match.
type Filter map[string]any

// SearchOptions controls a similarity search.
type SearchOptions struct {
	Limit          int
	ScoreThreshold float32
	Filter         Filter
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder converts text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Dimensioner is implemented by embedders with a fixed, known dimension.
type Dimensioner interface {
	Dimension() int
}

// Dimension returns the embedding size of e, embedding a probe text when e
// does not report it.
func Dimension(ctx context.Context, e Embedder) (int, error) {
	if d, ok := e.(Dimensioner); ok && d.Dimension() > 0 {
		return d.Dimension(), nil
	}
	vec, err := e.Embed(ctx, "dimension check")
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("embedder returned an empty vector")
	}
	return len(vec), nil
}
