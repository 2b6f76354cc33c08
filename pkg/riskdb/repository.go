// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package riskdb stores projects, risks, market signals and reports in vector
// memory and answers the semantic and structured queries the tools and the
// UI need.
package riskdb

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/alerts"
	"github.com/jllopis/riskcrew/pkg/cache"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/vector"
)

// Namespaces hold one record kind each.
const (
	NamespaceProjects = "projects"
	NamespaceRisks    = "risks"
	NamespaceMarket   = "market_data"
	NamespaceReports  = "reports"
)

var namespaces = []string{NamespaceProjects, NamespaceRisks, NamespaceMarket, NamespaceReports}

// Payload keys written on every point.
const (
	keyID        = "id"
	keyKind      = "kind"
	keyText      = "text"
	keyData      = "data"
	keyProjectID = "project_id"
	keyCategory  = "category"
	keyStatus    = "status"
	keyType      = "type"
	keyTimestamp = "timestamp"
)

const snapshotPrefix = "snapshot:"

// Repository is the risk data store.
type Repository struct {
	store    vector.Store
	embedder vector.Embedder
	prefix   string

	scoring atomic.Pointer[risk.Scoring]
	history *History
	cache   cache.Cache
	// generation changes on every invalidation; snapshots built across a
	// change are not cached.
	generation atomic.Uint64
	alerts  alerts.Publisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithCollectionPrefix prefixes every collection name: <prefix>-<namespace>.
func WithCollectionPrefix(prefix string) Option {
	return func(r *Repository) { r.prefix = prefix }
}

// WithScoring sets the initial scoring rules.
func WithScoring(s *risk.Scoring) Option {
	return func(r *Repository) {
		if s != nil {
			r.scoring.Store(s)
		}
	}
}

// WithHistory enables score history for trends.
func WithHistory(h *History) Option {
	return func(r *Repository) { r.history = h }
}

// WithCache caches dashboard snapshots.
func WithCache(c cache.Cache) Option {
	return func(r *Repository) { r.cache = c }
}

// WithAlerts publishes high-risk alerts and report events.
func WithAlerts(p alerts.Publisher) Option {
	return func(r *Repository) { r.alerts = p }
}

// WithMetrics records risk scores.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a repository over a vector store and an embedder.
func New(store vector.Store, embedder vector.Embedder, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		embedder: embedder,
		cache:    cache.NewMemory(5 * time.Minute),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer("riskdb"),
		now:      time.Now,
	}
	r.scoring.Store(risk.NewScoring())
	for _, opt := range opts {
		opt(r)
	}
	if r.alerts == nil {
		r.alerts = alerts.NewNoop(r.logger)
	}
	return r
}

// Init creates the collections with the embedder dimension.
func (r *Repository) Init(ctx context.Context) error {
	dim, err := vector.Dimension(ctx, r.embedder)
	if err != nil {
		return errors.New(errors.CodeEmbedding, "determine embedding dimension", err)
	}
	for _, ns := range namespaces {
		if err := r.store.EnsureCollection(ctx, r.collection(ns), uint64(dim)); err != nil {
			return err
		}
	}
	r.logger.Info("riskdb.init", slog.Int("dimension", dim), slog.String("prefix", r.prefix))
	return nil
}

// Scoring returns the active scoring rules.
func (r *Repository) Scoring() *risk.Scoring {
	return r.scoring.Load()
}

// SetScoring swaps the scoring rules and drops cached snapshots.
func (r *Repository) SetScoring(ctx context.Context, s *risk.Scoring) {
	r.scoring.Store(s)
	r.invalidate(ctx)
}

// History returns the score history, or nil when disabled.
func (r *Repository) History() *History {
	return r.history
}

// Cache returns the snapshot cache.
func (r *Repository) Cache() cache.Cache {
	return r.cache
}

func (r *Repository) collection(ns string) string {
	if r.prefix == "" {
		return ns
	}
	return r.prefix + "-" + ns
}

func (r *Repository) invalidate(ctx context.Context) {
	r.generation.Add(1)
	if r.cache == nil {
		return
	}
	if err := r.cache.DeletePrefix(ctx, snapshotPrefix); err != nil {
		r.logger.WarnContext(ctx, "riskdb.cache.invalidate.error", slog.String("error", err.Error()))
	}
}

func (r *Repository) put(ctx context.Context, ns, id, text string, record any, extra map[string]any) error {
	ctx, span := r.tracer.Start(ctx, "riskdb.store", trace.WithAttributes(
		attribute.String(telemetry.AttrNamespace, ns),
	))
	defer span.End()

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.New(errors.CodeEmbedding, "embed "+ns+" record", err).WithContext("id", id)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode record", err)
	}
	payload := map[string]any{
		keyID:   id,
		keyKind: ns,
		keyText: text,
		keyData: string(data),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := r.store.Upsert(ctx, r.collection(ns), []vector.Point{{ID: id, Vector: vec, Payload: payload}}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.invalidate(ctx)
	r.logger.InfoContext(ctx, "riskdb.stored", slog.String("namespace", ns), slog.String("id", id))
	return nil
}

func decodePoints[T any](points []vector.Point) ([]T, error) {
	out := make([]T, 0, len(points))
	for _, p := range points {
		raw, _ := p.Payload[keyData].(string)
		if raw == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, errors.New(errors.CodeVectorStore, "decode stored record", err).WithContext("id", p.ID)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeResults[T any](results []vector.SearchResult) ([]T, error) {
	points := make([]vector.Point, 0, len(results))
	for _, res := range results {
		points = append(points, res.Point)
	}
	return decodePoints[T](points)
}

func (r *Repository) search(ctx context.Context, ns, text string, filter vector.Filter, limit int) ([]vector.SearchResult, error) {
	ctx, span := r.tracer.Start(ctx, "riskdb.search", trace.WithAttributes(
		attribute.String(telemetry.AttrNamespace, ns),
		attribute.String(telemetry.AttrQuery, text),
	))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, errors.InvalidInput("query text is required")
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, errors.New(errors.CodeEmbedding, "embed query", err)
	}
	results, err := r.store.Search(ctx, r.collection(ns), vec, vector.SearchOptions{Limit: limit, Filter: filter})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// StoreProject validates and stores a project. A missing id is generated.
func (r *Repository) StoreProject(ctx context.Context, p risk.Project) (risk.Project, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = newID("p")
	}
	if err := r.put(ctx, NamespaceProjects, p.ID, projectText(p), p, map[string]any{
		keyStatus: p.Status,
	}); err != nil {
		return p, err
	}
	return p, nil
}

// StoreRisk validates and stores a risk, publishing an alert when its level
// is the highest configured level.
func (r *Repository) StoreRisk(ctx context.Context, rk risk.Risk) (risk.Risk, error) {
	if err := rk.Validate(); err != nil {
		return rk, err
	}
	rk = rk.Normalize()
	now := r.now()
	if rk.ID == "" {
		rk.ID = newID("r")
	}
	if rk.CreatedAt.IsZero() {
		rk.CreatedAt = now
	}
	rk.UpdatedAt = now
	if err := r.put(ctx, NamespaceRisks, rk.ID, riskText(rk), rk, map[string]any{
		keyProjectID: rk.ProjectID,
		keyCategory:  rk.Category,
		keyStatus:    string(rk.Status),
	}); err != nil {
		return rk, err
	}
	r.alertIfHigh(ctx, rk)
	return rk, nil
}

func (r *Repository) alertIfHigh(ctx context.Context, rk risk.Risk) {
	s := r.Scoring()
	if rk.Status.Resolved() || len(s.Levels) == 0 {
		return
	}
	score := risk.RiskScore(rk)
	level := s.LevelFor(score)
	if level.Name != s.Levels[len(s.Levels)-1].Name {
		return
	}
	err := r.alerts.PublishAlert(ctx, alerts.Alert{
		RiskID:    rk.ID,
		ProjectID: rk.ProjectID,
		Title:     rk.Title,
		Category:  rk.Category,
		Score:     score,
		Level:     level.Name,
		Reason:    "risk stored at level " + level.Name,
		Timestamp: r.now(),
	})
	if err != nil {
		r.logger.WarnContext(ctx, "riskdb.alert.error", slog.String("risk_id", rk.ID), slog.String("error", err.Error()))
	}
}

// RiskUpdate lists the fields of a risk that can change. Nil fields are kept;
// a non-nil empty Mitigations clears them.
type RiskUpdate struct {
	Probability *float64
	Impact      *float64
	Status      *string
	Mitigations *[]string
	Description *string
}

// UpdateRisk applies u to the stored risk with the given id.
func (r *Repository) UpdateRisk(ctx context.Context, id string, u RiskUpdate) (risk.Risk, error) {
	rk, err := r.GetRisk(ctx, id)
	if err != nil {
		return rk, err
	}
	if u.Probability != nil {
		rk.Probability = *u.Probability
	}
	if u.Impact != nil {
		rk.Impact = *u.Impact
	}
	if u.Status != nil {
		st, err := risk.ParseStatus(*u.Status)
		if err != nil {
			return rk, err
		}
		rk.Status = st
	}
	if u.Description != nil {
		rk.Description = *u.Description
	}
	if u.Mitigations != nil {
		rk.Mitigations = append([]string(nil), *u.Mitigations...)
	}
	return r.StoreRisk(ctx, rk)
}

// StoreMarketSignal validates and stores a market signal.
func (r *Repository) StoreMarketSignal(ctx context.Context, m risk.MarketSignal) (risk.MarketSignal, error) {
	if err := m.Validate(); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = newID("m")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	if err := r.put(ctx, NamespaceMarket, m.ID, marketText(m), m, map[string]any{
		keyType:      m.Type,
		keyTimestamp: m.Timestamp.Unix(),
	}); err != nil {
		return m, err
	}
	return m, nil
}

// StoreReport validates and stores a report and publishes a report event.
func (r *Repository) StoreReport(ctx context.Context, rep risk.Report) (risk.Report, error) {
	if err := rep.Validate(); err != nil {
		return rep, err
	}
	if rep.ID == "" {
		rep.ID = newID("rep")
	}
	if rep.Timestamp.IsZero() {
		rep.Timestamp = r.now()
	}
	if err := r.put(ctx, NamespaceReports, rep.ID, reportText(rep), rep, map[string]any{
		keyProjectID: rep.ProjectID,
		keyTimestamp: rep.Timestamp.Unix(),
	}); err != nil {
		return rep, err
	}
	if err := r.alerts.PublishReport(ctx, rep); err != nil {
		r.logger.WarnContext(ctx, "riskdb.report.publish.error", slog.String("report_id", rep.ID), slog.String("error", err.Error()))
	}
	return rep, nil
}

// QueryProjects returns the projects most similar to text.
func (r *Repository) QueryProjects(ctx context.Context, text string, limit int) ([]risk.Project, error) {
	results, err := r.search(ctx, NamespaceProjects, text, nil, defaultLimit(limit, 5))
	if err != nil {
		return nil, err
	}
	return decodeResults[risk.Project](results)
}

// QueryRisks returns the risks most similar to text, optionally restricted
// to one project.
func (r *Repository) QueryRisks(ctx context.Context, text, projectID string, limit int) ([]risk.Risk, error) {
	var filter vector.Filter
	if projectID != "" {
		filter = vector.Filter{keyProjectID: projectID}
	}
	results, err := r.search(ctx, NamespaceRisks, text, filter, defaultLimit(limit, 10))
	if err != nil {
		return nil, err
	}
	return decodeResults[risk.Risk](results)
}

// QueryMarket returns the market signals most similar to text.
func (r *Repository) QueryMarket(ctx context.Context, text string, limit int) ([]risk.MarketSignal, error) {
	results, err := r.search(ctx, NamespaceMarket, text, nil, defaultLimit(limit, 5))
	if err != nil {
		return nil, err
	}
	return decodeResults[risk.MarketSignal](results)
}

func defaultLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// GetProject returns the project with the given id.
func (r *Repository) GetProject(ctx context.Context, id string) (risk.Project, error) {
	return getOne[risk.Project](ctx, r, NamespaceProjects, "project", id)
}

// GetRisk returns the risk with the given id.
func (r *Repository) GetRisk(ctx context.Context, id string) (risk.Risk, error) {
	return getOne[risk.Risk](ctx, r, NamespaceRisks, "risk", id)
}

func getOne[T any](ctx context.Context, r *Repository, ns, kind, id string) (T, error) {
	var zero T
	points, err := r.store.Get(ctx, r.collection(ns), []string{id})
	if err != nil {
		return zero, err
	}
	items, err := decodePoints[T](points)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, errors.NotFound(kind, id)
	}
	return items[0], nil
}

// FindProject resolves a project by id or by case-insensitive name.
func (r *Repository) FindProject(ctx context.Context, nameOrID string) (risk.Project, error) {
	key := strings.TrimSpace(nameOrID)
	if key == "" {
		return risk.Project{}, errors.InvalidInput("project name is required")
	}
	if p, err := r.GetProject(ctx, key); err == nil {
		return p, nil
	} else if !errors.IsCode(err, errors.CodeNotFound) {
		return p, err
	}
	projects, err := r.AllProjects(ctx)
	if err != nil {
		return risk.Project{}, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return risk.Project{}, errors.NotFound("project", key)
}

// AllProjects lists every project ordered by name.
func (r *Repository) AllProjects(ctx context.Context) ([]risk.Project, error) {
	points, err := r.store.Scroll(ctx, r.collection(NamespaceProjects), nil, 0)
	if err != nil {
		return nil, err
	}
	projects, err := decodePoints[risk.Project](points)
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// ProjectNames lists the stored project names.
func (r *Repository) ProjectNames(ctx context.Context) ([]string, error) {
	projects, err := r.AllProjects(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names, nil
}

// ProjectRisks lists the risks of a project.
func (r *Repository) ProjectRisks(ctx context.Context, projectID string) ([]risk.Risk, error) {
	points, err := r.store.Scroll(ctx, r.collection(NamespaceRisks), vector.Filter{keyProjectID: projectID}, 0)
	if err != nil {
		return nil, err
	}
	return decodePoints[risk.Risk](points)
}

// AllRisks lists every stored risk.
func (r *Repository) AllRisks(ctx context.Context) ([]risk.Risk, error) {
	points, err := r.store.Scroll(ctx, r.collection(NamespaceRisks), nil, 0)
	if err != nil {
		return nil, err
	}
	return decodePoints[risk.Risk](points)
}

// ResolveRisks returns the risks and projects selected by a project name,
// id, or AllProjects.
func (r *Repository) ResolveRisks(ctx context.Context, project string) ([]risk.Risk, []risk.Project, error) {
	if project == "" || project == config.AllProjects {
		risks, err := r.AllRisks(ctx)
		if err != nil {
			return nil, nil, err
		}
		projects, err := r.AllProjects(ctx)
		if err != nil {
			return nil, nil, err
		}
		return risks, projects, nil
	}
	p, err := r.FindProject(ctx, project)
	if err != nil {
		return nil, nil, err
	}
	risks, err := r.ProjectRisks(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return risks, []risk.Project{p}, nil
}

// RecentMarketData lists market signals newer than hours, optionally of one
// type, newest first.
func (r *Repository) RecentMarketData(ctx context.Context, hours int, typ string) ([]risk.MarketSignal, error) {
	var filter vector.Filter
	if typ != "" {
		filter = vector.Filter{keyType: typ}
	}
	points, err := r.store.Scroll(ctx, r.collection(NamespaceMarket), filter, 0)
	if err != nil {
		return nil, err
	}
	signals, err := decodePoints[risk.MarketSignal](points)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = 24
	}
	cutoff := r.now().Add(-time.Duration(hours) * time.Hour)
	out := signals[:0]
	for _, m := range signals {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ProjectReports lists the most recent reports of a project, newest first.
func (r *Repository) ProjectReports(ctx context.Context, projectID string, limit int) ([]risk.Report, error) {
	points, err := r.store.Scroll(ctx, r.collection(NamespaceReports), vector.Filter{keyProjectID: projectID}, 0)
	if err != nil {
		return nil, err
	}
	reports, err := decodePoints[risk.Report](points)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Timestamp.After(reports[j].Timestamp) })
	limit = defaultLimit(limit, 5)
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// SeedCounts reports how many records Seed stored.
type SeedCounts struct {
	Projects   int `json:"projects"`
	Risks      int `json:"risks"`
	MarketData int `json:"market_data"`
}

// Seed stores the sample data set.
func (r *Repository) Seed(ctx context.Context) (SeedCounts, error) {
	var counts SeedCounts
	sample := risk.SampleData(r.now())
	for _, p := range sample.Projects {
		if _, err := r.StoreProject(ctx, p); err != nil {
			return counts, err
		}
		counts.Projects++
	}
	for _, rk := range sample.Risks {
		if _, err := r.StoreRisk(ctx, rk); err != nil {
			return counts, err
		}
		counts.Risks++
	}
	for _, m := range sample.Signals {
		if _, err := r.StoreMarketSignal(ctx, m); err != nil {
			return counts, err
		}
		counts.MarketData++
	}
	r.logger.InfoContext(ctx, "riskdb.seed.complete",
		slog.Int("projects", counts.Projects),
		slog.Int("risks", counts.Risks),
		slog.Int("market_data", counts.MarketData),
	)
	return counts, nil
}

// Empty reports whether no project is stored.
func (r *Repository) Empty(ctx context.Context) (bool, error) {
	points, err := r.store.Scroll(ctx, r.collection(NamespaceProjects), nil, 1)
	if err != nil {
		return false, err
	}
	return len(points) == 0, nil
}

// Ping checks the vector store by listing one project.
func (r *Repository) Ping(ctx context.Context) error {
	_, err := r.store.Scroll(ctx, r.collection(NamespaceProjects), nil, 1)
	return err
}
