// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jllopis/riskcrew/pkg/errors"
)

type collection struct {
	dim    uint64
	points map[string]Point
}

// InMemoryStore is an in-process Store using cosine similarity.
// Results are ordered by score descending, then id ascending.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*collection)}
}

// EnsureCollection implements Store.
func (s *InMemoryStore) EnsureCollection(_ context.Context, name string, dim uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dim: dim, points: make(map[string]Point)}
	}
	return nil
}

// Upsert implements Store.
func (s *InMemoryStore) Upsert(_ context.Context, name string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return errors.NotFound("collection", name)
	}
	for _, p := range points {
		if p.ID == "" {
			return errors.InvalidInput("point id is required")
		}
		if c.dim > 0 && uint64(len(p.Vector)) != c.dim {
			return errors.InvalidInput("vector size %d does not match collection %s size %d", len(p.Vector), name, c.dim)
		}
		c.points[p.ID] = clonePoint(p)
	}
	return nil
}

// Search implements Store.
func (s *InMemoryStore) Search(_ context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.NotFound("collection", name)
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if !Matches(p.Payload, opts.Filter) {
			continue
		}
		score := Cosine(vector, p.Vector)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Point: clonePoint(p)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, name string, ids []string) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.NotFound("collection", name)
	}
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.points[id]; ok {
			out = append(out, clonePoint(p))
		}
	}
	return out, nil
}

// Scroll implements Store. Points are returned in id order.
func (s *InMemoryStore) Scroll(_ context.Context, name string, filter Filter, limit int) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.NotFound("collection", name)
	}
	out := make([]Point, 0, len(c.points))
	for _, p := range c.points {
		if Matches(p.Payload, filter) {
			out = append(out, clonePoint(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of points in a collection.
func (s *InMemoryStore) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the sizes differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Matches reports whether payload satisfies every key of filter.
// Numeric values compare by value regardless of their Go type.
func Matches(payload map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func clonePoint(p Point) Point {
	out := Point{ID: p.ID}
	if p.Vector != nil {
		out.Vector = append([]float32(nil), p.Vector...)
	}
	out.Payload = make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		out.Payload[k] = v
	}
	return out
}

var _ Store = (*InMemoryStore)(nil)
