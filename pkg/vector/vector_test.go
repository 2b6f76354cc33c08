package vector

import (
	"context"
	"errors"
	"testing"

	rerrors "github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/telemetry/telemetrytest"
)

func TestInMemorySearchOrdersByScoreThenID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.EnsureCollection(ctx, "risks", 2); err != nil {
		t.Fatal(err)
	}
	points := []Point{
		{ID: "b", Vector: []float32{1, 0}, Payload: map[string]any{"project_id": "p1"}},
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"project_id": "p2"}},
		{ID: "c", Vector: []float32{0, 1}, Payload: map[string]any{"project_id": "p1"}},
	}
	if err := s.Upsert(ctx, "risks", points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := s.Search(ctx, "risks", []float32{1, 0}, SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 3 || res[0].ID != "a" || res[1].ID != "b" || res[2].ID != "c" {
		t.Fatalf("unexpected order %+v", res)
	}

	res, _ = s.Search(ctx, "risks", []float32{1, 0}, SearchOptions{Limit: 10, Filter: Filter{"project_id": "p1"}})
	if len(res) != 2 || res[0].ID != "b" {
		t.Errorf("unexpected filtered results %+v", res)
	}

	res, _ = s.Search(ctx, "risks", []float32{1, 0}, SearchOptions{Limit: 10, ScoreThreshold: 0.5})
	if len(res) != 2 {
		t.Errorf("expected threshold to drop orthogonal point, got %d", len(res))
	}
}

func TestInMemoryUpsertReplacesAndValidates(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.EnsureCollection(ctx, "projects", 2)

	if err := s.Upsert(ctx, "missing", []Point{{ID: "x", Vector: []float32{1, 0}}}); !rerrors.IsCode(err, rerrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND for unknown collection, got %v", err)
	}
	if err := s.Upsert(ctx, "projects", []Point{{ID: "x", Vector: []float32{1}}}); !rerrors.IsCode(err, rerrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for size mismatch, got %v", err)
	}

	_ = s.Upsert(ctx, "projects", []Point{{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{"status": "Active"}}})
	_ = s.Upsert(ctx, "projects", []Point{{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{"status": "Completed"}}})
	if s.Count("projects") != 1 {
		t.Fatalf("expected upsert to replace, count=%d", s.Count("projects"))
	}
	got, _ := s.Get(ctx, "projects", []string{"p1", "nope"})
	if len(got) != 1 || got[0].Payload["status"] != "Completed" {
		t.Errorf("unexpected get result %+v", got)
	}
}

func TestInMemoryScroll(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.EnsureCollection(ctx, "market_data", 0)
	_ = s.Upsert(ctx, "market_data", []Point{
		{ID: "m2", Payload: map[string]any{"type": "security_alert"}},
		{ID: "m1", Payload: map[string]any{"type": "industry_trend"}},
		{ID: "m3", Payload: map[string]any{"type": "security_alert"}},
	})
	all, _ := s.Scroll(ctx, "market_data", nil, 0)
	if len(all) != 3 || all[0].ID != "m1" {
		t.Errorf("unexpected scroll %+v", all)
	}
	alerts, _ := s.Scroll(ctx, "market_data", Filter{"type": "security_alert"}, 1)
	if len(alerts) != 1 || alerts[0].ID != "m2" {
		t.Errorf("unexpected filtered scroll %+v", alerts)
	}
}

func TestMatchesNumericTypes(t *testing.T) {
	if !Matches(map[string]any{"n": int64(3)}, Filter{"n": 3}) {
		t.Error("expected int64 and int to match")
	}
	if Matches(map[string]any{"n": "3"}, Filter{"n": 3}) {
		t.Error("string should not match number")
	}
}

func TestCosineZeroVector(t *testing.T) {
	if Cosine([]float32{0, 0}, []float32{1, 0}) != 0 {
		t.Error("expected zero similarity for zero vector")
	}
	if Cosine([]float32{1}, []float32{1, 0}) != 0 {
		t.Error("expected zero similarity for size mismatch")
	}
}

func TestHashEmbedderSimilarity(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(128)
	a, _ := e.Embed(ctx, "Cloud migration budget overrun")
	b, _ := e.Embed(ctx, "budget overrun on the cloud migration")
	c, _ := e.Embed(ctx, "regulatory compliance audit")
	again, _ := e.Embed(ctx, "Cloud migration budget overrun")

	if len(a) != 128 {
		t.Fatalf("expected 128 dims, got %d", len(a))
	}
	if Cosine(a, again) < 0.999 {
		t.Error("expected deterministic embedding")
	}
	if Cosine(a, b) <= Cosine(a, c) {
		t.Errorf("expected related texts to be closer: %v vs %v", Cosine(a, b), Cosine(a, c))
	}
	empty, _ := e.Embed(ctx, "   ")
	if Cosine(empty, a) != 0 {
		t.Error("expected empty text to embed to the zero vector")
	}
}

type countingEmbedder struct{ calls int }

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	if c.calls == 1 {
		return nil, errors.New("connection reset")
	}
	return []float32{1, 2, 3}, nil
}

func TestDimensionAndResilientEmbedder(t *testing.T) {
	ctx := context.Background()
	if d, _ := Dimension(ctx, NewHashEmbedder(64)); d != 64 {
		t.Errorf("expected 64, got %d", d)
	}

	inner := &countingEmbedder{}
	rec := telemetrytest.New(t)
	e := NewResilientEmbedder(inner, resilience.DefaultRetryConfig().WithInitialDelay(0)).WithMetrics(rec.Metrics)
	d, err := Dimension(ctx, e)
	if err != nil {
		t.Fatalf("Dimension: %v", err)
	}
	if d != 3 || inner.calls != 2 {
		t.Errorf("expected dim 3 after retry, got %d (calls=%d)", d, inner.calls)
	}
	if n := rec.Sum(t, "riskcrew.errors.recovered"); n != 1 {
		t.Errorf("expected 1 recovery recorded, got %d", n)
	}
}
