// SPDX-License-Identifier: Apache-2.0

package riskdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/riskcrew/pkg/alerts"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/telemetry/telemetrytest"
	"github.com/jllopis/riskcrew/pkg/vector"
)

type recordingPublisher struct {
	mu      sync.Mutex
	alerts  []alerts.Alert
	reports []risk.Report
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a alerts.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) PublishReport(_ context.Context, r risk.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo  *Repository
	pub   *recordingPublisher
	clock *clock
	store *vector.InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	hist, err := NewHistory(db)
	require.NoError(t, err)

	f := &fixture{
		pub:   &recordingPublisher{},
		clock: &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		store: vector.NewInMemoryStore(),
	}
	all := append([]Option{
		WithCollectionPrefix("test"),
		WithHistory(hist),
		WithAlerts(f.pub),
		WithClock(f.clock.Now),
	}, opts...)
	f.repo = New(f.store, vector.NewHashEmbedder(1024), all...)
	require.NoError(t, f.repo.Init(context.Background()))
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	counts, err := f.repo.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, SeedCounts{Projects: 3, Risks: 8, MarketData: 4}, counts)
}

func TestSeedAndLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.repo.Empty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	f.seed(t)
	assert.Equal(t, 8, f.store.Count("test-risks"))

	empty, err = f.repo.Empty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	p, err := f.repo.GetProject(ctx, "p1002")
	require.NoError(t, err)
	assert.Equal(t, "Mobile Banking App", p.Name)

	p, err = f.repo.FindProject(ctx, "data center upgrade")
	require.NoError(t, err)
	assert.Equal(t, "p1003", p.ID)

	_, err = f.repo.FindProject(ctx, "ERP Implementation")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	names, err := f.repo.ProjectNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cloud Migration", "Data Center Upgrade", "Mobile Banking App"}, names)

	risks, err := f.repo.ProjectRisks(ctx, "p1001")
	require.NoError(t, err)
	assert.Len(t, risks, 3)

	all, err := f.repo.AllRisks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestQueryRisks(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	found, err := f.repo.QueryRisks(ctx, "Hardware Delivery Delays: delayed delivery of critical infrastructure components", "", 3)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "r2006", found[0].ID)

	scoped, err := f.repo.QueryRisks(ctx, "security", "p1003", 10)
	require.NoError(t, err)
	for _, r := range scoped {
		assert.Equal(t, "p1003", r.ProjectID)
	}

	_, err = f.repo.QueryRisks(ctx, "  ", "", 5)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestStoreRiskValidatesAndAlerts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	assert.Empty(t, f.pub.alerts, "sample data has no high risks")

	_, err := f.repo.StoreRisk(ctx, risk.Risk{Title: "No project"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	stored, err := f.repo.StoreRisk(ctx, risk.Risk{
		ProjectID:   "p1001",
		Title:       "Key vendor insolvency",
		Category:    "Vendor",
		Probability: 90,
		Impact:      90,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, 0.9, stored.Probability)
	assert.Equal(t, risk.StatusActive, stored.Status)
	require.Len(t, f.pub.alerts, 1)
	assert.Equal(t, 81, f.pub.alerts[0].Score)
	assert.Equal(t, "High", f.pub.alerts[0].Level)

	status := "Mitigated"
	updated, err := f.repo.UpdateRisk(ctx, stored.ID, RiskUpdate{Status: &status, Mitigations: &[]string{"Dual sourcing"}})
	require.NoError(t, err)
	assert.Equal(t, risk.StatusMitigated, updated.Status)
	assert.Equal(t, []string{"Dual sourcing"}, updated.Mitigations)
	assert.Len(t, f.pub.alerts, 1, "resolved risks do not alert")

	kept, err := f.repo.UpdateRisk(ctx, stored.ID, RiskUpdate{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dual sourcing"}, kept.Mitigations)

	cleared, err := f.repo.UpdateRisk(ctx, stored.ID, RiskUpdate{Mitigations: &[]string{}})
	require.NoError(t, err)
	assert.Empty(t, cleared.Mitigations)
	reloaded, err := f.repo.GetRisk(ctx, stored.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Mitigations)

	_, err = f.repo.UpdateRisk(ctx, "r-missing", RiskUpdate{})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRecentMarketData(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	recent, err := f.repo.RecentMarketData(ctx, 24, "")
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	alertsOnly, err := f.repo.RecentMarketData(ctx, 24, risk.SignalSecurityAlert)
	require.NoError(t, err)
	require.Len(t, alertsOnly, 1)
	assert.Equal(t, "m3004", alertsOnly[0].ID)

	f.clock.Advance(48 * time.Hour)
	recent, err = f.repo.RecentMarketData(ctx, 24, "")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestReportsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.repo.StoreReport(ctx, risk.Report{ProjectID: "p1001", OverallScore: 50 + i, Summary: "weekly"})
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
	}
	_, err := f.repo.StoreReport(ctx, risk.Report{ProjectID: "p1002", OverallScore: 10})
	require.NoError(t, err)

	reports, err := f.repo.ProjectReports(ctx, "p1001", 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 52, reports[0].OverallScore)
	assert.Equal(t, 51, reports[1].OverallScore)
	assert.Len(t, f.pub.reports, 4)
}

func TestSnapshotAndTrend(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	written, err := f.repo.RecordScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, written)

	snap, err := f.repo.Snapshot(ctx, "Data Center Upgrade", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalRisks)
	assert.Equal(t, 83, snap.OverallScore)
	assert.Equal(t, "High", snap.Level.Name)
	assert.Equal(t, 0, snap.HighRisks)
	assert.Equal(t, 1, snap.LevelCounts["Medium"])
	assert.Len(t, snap.TrendData, 2)
	assert.Equal(t, 0.0, snap.RiskTrend)

	// Mitigate one risk, which invalidates the cached snapshot.
	f.clock.Advance(24 * time.Hour)
	status := "Closed"
	_, err = f.repo.UpdateRisk(ctx, "r2006", RiskUpdate{Status: &status})
	require.NoError(t, err)

	snap, err = f.repo.Snapshot(ctx, "Data Center Upgrade", 30)
	require.NoError(t, err)
	assert.Equal(t, 48, snap.OverallScore)
	assert.InDelta(t, 33.3, snap.MitigationRate, 0.01)
	assert.InDelta(t, -42.2, snap.RiskTrend, 0.01)

	all, err := f.repo.Snapshot(ctx, config.AllProjects, 30)
	require.NoError(t, err)
	assert.Equal(t, 8, all.TotalRisks)
	assert.Equal(t, 100, all.OverallScore)

	_, err = f.repo.Snapshot(ctx, "Unknown", 30)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestSetScoringInvalidatesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	snap, err := f.repo.Snapshot(ctx, "Mobile Banking App", 30)
	require.NoError(t, err)
	assert.Equal(t, 78, snap.OverallScore)

	f.repo.SetScoring(ctx, &risk.Scoring{
		Levels:  risk.DefaultLevels,
		Weights: map[string]float64{"Regulatory": 50},
	})
	snap, err = f.repo.Snapshot(ctx, "Mobile Banking App", 30)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.OverallScore)
}

func TestSnapshotNotCachedAcrossWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// Close r2006 while the first snapshot is being built, after its risks
	// were read.
	var armed atomic.Bool
	armed.Store(true)
	f.repo.now = func() time.Time {
		if armed.CompareAndSwap(true, false) {
			status := "Closed"
			_, err := f.repo.UpdateRisk(ctx, "r2006", RiskUpdate{Status: &status})
			require.NoError(t, err)
		}
		return f.clock.Now()
	}

	snap, err := f.repo.Snapshot(ctx, "Data Center Upgrade", 30)
	require.NoError(t, err)
	assert.Equal(t, 83, snap.OverallScore)
	require.False(t, armed.Load())

	snap, err = f.repo.Snapshot(ctx, "Data Center Upgrade", 30)
	require.NoError(t, err)
	assert.Equal(t, 48, snap.OverallScore, "the snapshot built before the write must not be served")
}

func TestRefresherRecordsHistory(t *testing.T) {
	rec := telemetrytest.New(t)
	f := newFixture(t, WithMetrics(rec.Metrics))
	f.seed(t)
	ctx := context.Background()

	r := NewRefresher(f.repo, time.Hour)
	require.NoError(t, r.RefreshOnce(ctx))
	f.clock.Advance(time.Hour)
	require.NoError(t, r.RefreshOnce(ctx))

	points, err := f.repo.History().Points(ctx, "p1001", f.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, points, 2)

	assert.EqualValues(t, 2, rec.Sum(t, "riskcrew.refresh.count"))
	assert.EqualValues(t, 2, rec.Sum(t, "riskcrew.refresh.latency"))
	assert.EqualValues(t, 0, rec.Sum(t, "riskcrew.refresh.error.count"))

	r.Start(ctx)
	r.Stop()
	r.Stop()
}

func TestHistoryPrune(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	h, err := NewHistory(db)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, "p1", 10*i, "Low", base.AddDate(0, 0, i)))
	}
	points, err := h.Points(ctx, "p1", base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 20, points[0].Score)

	n, err := h.Prune(ctx, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
