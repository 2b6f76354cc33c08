// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package crew coordinates the risk agents: it builds them from a
// definition and runs their tasks in dependency order, sequentially or in
// parallel waves, passing each task the outputs of the tasks it depends on.
package crew

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/riskcrew/pkg/agent"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/tools"
)

// Process names.
const (
	ProcessSequential = "sequential"
	ProcessParallel   = "parallel"
)

// Runner answers a query about a project.
type Runner interface {
	Kickoff(ctx context.Context, query, project string) (*Result, error)
}

// Result is the outcome of a crew run.
type Result struct {
	RunID    string            `json:"run_id"`
	Final    string            `json:"final"`
	Outputs  map[string]string `json:"outputs"`
	Tasks    []*core.Task      `json:"tasks"`
	Duration time.Duration     `json:"duration"`
}

// Crew runs a validated definition with one agent per agent spec.
type Crew struct {
	def     *Definition
	order   []TaskSpec
	agents  map[string]*agent.Agent
	process string

	audit   AuditStore
	metrics *telemetry.Metrics
	emitter core.EventEmitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

type options struct {
	process       string
	maxIterations int
	toolTimeout   time.Duration
	temperature   float64
	modelFor      func(agentID string) string
	audit         AuditStore
	metrics       *telemetry.Metrics
	emitter       core.EventEmitter
	logger        *slog.Logger
}

// Option configures a Crew.
type Option func(*options)

// WithProcess selects sequential or parallel execution.
func WithProcess(p string) Option {
	return func(o *options) { o.process = p }
}

// WithMaxIterations bounds every agent's tool loop.
func WithMaxIterations(n int) Option {
	return func(o *options) { o.maxIterations = n }
}

// WithToolTimeout bounds each tool call of every agent.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) { o.toolTimeout = d }
}

// WithTemperature sets the sampling temperature of every agent.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithModels resolves the model of each agent. Agent specs with an
// explicit model take precedence.
func WithModels(fn func(agentID string) string) Option {
	return func(o *options) { o.modelFor = fn }
}

// WithAuditStore records every finished task.
func WithAuditStore(s AuditStore) Option {
	return func(o *options) { o.audit = s }
}

// WithMetrics attaches the shared metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEventEmitter receives crew, task and tool events.
func WithEventEmitter(e core.EventEmitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// FromConfig maps the crew and llm settings to options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithProcess(cfg.Crew.Process),
		WithMaxIterations(cfg.Crew.MaxIterations),
		WithToolTimeout(cfg.Crew.ToolTimeout),
		WithTemperature(cfg.LLM.Temperature),
		WithModels(cfg.LLM.ModelFor),
	}
}

// New builds the agents of def over provider, giving each the tools it
// names in the registry.
func New(def *Definition, provider llm.Provider, registry *tools.Registry, opts ...Option) (*Crew, error) {
	o := options{
		process:       ProcessSequential,
		maxIterations: agent.DefaultMaxIterations,
		toolTimeout:   agent.DefaultToolTimeout,
		temperature:   0.7,
		emitter:       core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.emitter == nil {
		o.emitter = core.NoopEventEmitter{}
	}
	switch o.process {
	case ProcessSequential, ProcessParallel:
	default:
		return nil, errors.InvalidInput("unknown crew process %q", o.process)
	}
	if def == nil {
		def = DefaultDefinition()
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	order, err := def.Order()
	if err != nil {
		return nil, err
	}

	c := &Crew{
		def:     def,
		order:   order,
		agents:  make(map[string]*agent.Agent, len(def.Agents)),
		process: o.process,
		audit:   o.audit,
		metrics: o.metrics,
		emitter: o.emitter,
		logger:  telemetry.Component(o.logger, "crew"),
		tracer:  telemetry.Tracer("riskcrew/crew"),
	}
	for _, spec := range def.Agents {
		ts, err := registry.Resolve(spec.Tools)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("agent %s tools", spec.ID), err)
		}
		model := spec.Model
		if model == "" && o.modelFor != nil {
			model = o.modelFor(spec.ID)
		}
		a, err := agent.New(spec.ID, provider,
			agent.WithRole(spec.Role),
			agent.WithGoal(spec.Goal),
			agent.WithBackstory(spec.Backstory),
			agent.WithModel(model),
			agent.WithTemperature(o.temperature),
			agent.WithTools(ts...),
			agent.WithMaxIterations(o.maxIterations),
			agent.WithToolTimeout(o.toolTimeout),
			agent.WithMetrics(o.metrics),
			agent.WithEventEmitter(o.emitter),
			agent.WithLogger(o.logger),
		)
		if err != nil {
			return nil, err
		}
		c.agents[spec.ID] = a
	}
	return c, nil
}

// Process returns the configured process.
func (c *Crew) Process() string { return c.process }

// Agents returns the crew agents in definition order.
func (c *Crew) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(c.def.Agents))
	for _, spec := range c.def.Agents {
		out = append(out, c.agents[spec.ID])
	}
	return out
}

// TaskOrder returns the task ids in execution order.
func (c *Crew) TaskOrder() []string {
	ids := make([]string, 0, len(c.order))
	for _, t := range c.order {
		ids = append(ids, t.ID)
	}
	return ids
}

// Kickoff runs every task for query. An empty project means all projects.
// The first task error cancels the run and is returned.
func (c *Crew) Kickoff(ctx context.Context, query, project string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.InvalidInput("query is required")
	}
	project = strings.TrimSpace(project)
	if project == "" {
		project = config.AllProjects
	}

	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithProject(ctx, project)
	ctx, span := c.tracer.Start(ctx, "Crew.Kickoff")
	defer span.End()
	span.SetAttributes(telemetry.CrewAttributes(runID, c.process, project, query)...)

	log := c.logger.With(slog.String("run_id", runID))
	start := time.Now()
	log.InfoContext(ctx, "crew.kickoff.start",
		slog.String("process", c.process),
		slog.String("project", project),
		slog.Int("tasks", len(c.order)),
	)
	c.emitter.Emit(ctx, core.NewEvent(core.EventCrewStarted, runID, "", "", map[string]any{
		"project": project,
		"query":   query,
		"process": c.process,
	}))

	r := &run{
		crew:    c,
		runID:   runID,
		data:    TaskData{Query: query, Project: project, Context: fmt.Sprintf("The user wants to know about: '%s' for project: '%s'", query, project)},
		outputs: make(map[string]string, len(c.order)),
		tasks:   make(map[string]*core.Task, len(c.order)),
		log:     log,
	}
	for _, t := range c.order {
		r.tasks[t.ID] = core.NewTask(runID, t.ID, t.Agent)
	}

	var err error
	if c.process == ProcessParallel {
		err = r.parallel(ctx)
	} else {
		err = r.sequential(ctx)
	}

	result := &Result{
		RunID:    runID,
		Outputs:  r.outputs,
		Duration: time.Since(start),
	}
	for _, t := range c.order {
		task := r.tasks[t.ID]
		if !task.Done() {
			task.Cancel()
		}
		result.Tasks = append(result.Tasks, task)
	}
	c.metrics.RecordKickoff(ctx, c.process, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordError(ctx, err, "crew")
		c.emitter.Emit(ctx, core.NewEvent(core.EventCrewFailed, runID, "", "", map[string]any{"error": err.Error()}))
		log.ErrorContext(ctx, "crew.kickoff.error",
			slog.String("error", err.Error()),
			slog.Duration("duration", result.Duration),
		)
		return result, err
	}

	result.Final = r.outputs[c.order[len(c.order)-1].ID]
	span.SetStatus(codes.Ok, "")
	c.emitter.Emit(ctx, core.NewEvent(core.EventCrewCompleted, runID, "", "", map[string]any{
		"duration_ms": result.Duration.Milliseconds(),
	}))
	log.InfoContext(ctx, "crew.kickoff.end", slog.Duration("duration", result.Duration))
	return result, nil
}

// run holds the state of one kickoff.
type run struct {
	crew  *Crew
	runID string
	data  TaskData
	log   *slog.Logger

	mu      sync.Mutex
	outputs map[string]string
	tasks   map[string]*core.Task
}

func (r *run) sequential(ctx context.Context) error {
	for _, spec := range r.crew.order {
		if err := r.runTask(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// parallel runs waves of tasks whose dependencies are complete.
func (r *run) parallel(ctx context.Context) error {
	done := make(map[string]bool, len(r.crew.order))
	for len(done) < len(r.crew.order) {
		var wave []TaskSpec
		for _, spec := range r.crew.order {
			if done[spec.ID] {
				continue
			}
			ready := true
			for _, dep := range spec.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, spec)
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, spec := range wave {
			g.Go(func() error {
				return r.runTask(gctx, spec)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, spec := range wave {
			done[spec.ID] = true
		}
	}
	return nil
}

func (r *run) runTask(ctx context.Context, spec TaskSpec) error {
	r.mu.Lock()
	task := r.tasks[spec.ID]
	prompt, err := r.prompt(spec)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.New(errors.CodeTimeout, "crew run cancelled", err).WithContext("task", spec.ID)
	}

	ctx, span := r.crew.tracer.Start(ctx, "Crew.Task")
	defer span.End()

	task.Start()
	span.SetAttributes(telemetry.TaskAttributes(task.ID, string(task.Status))...)
	r.crew.emitter.Emit(ctx, core.NewEvent(core.EventTaskStarted, r.runID, spec.Agent, spec.ID, nil))
	r.log.InfoContext(ctx, "crew.task.start", slog.String("task_id", spec.ID), slog.String("agent", spec.Agent))

	out, err := r.crew.agents[spec.Agent].Run(ctx, prompt)

	r.mu.Lock()
	if err != nil {
		task.Fail(err.Error())
	} else {
		task.Complete(out)
		r.outputs[spec.ID] = out
	}
	event := auditEvent(task)
	r.mu.Unlock()

	r.crew.metrics.RecordTask(ctx, task.ID, string(task.Status), task.Duration())
	if r.crew.audit != nil {
		if auditErr := r.crew.audit.Record(ctx, event); auditErr != nil {
			r.log.WarnContext(ctx, "crew.audit.error", slog.String("task_id", spec.ID), slog.String("error", auditErr.Error()))
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.crew.emitter.Emit(ctx, core.NewEvent(core.EventTaskFailed, r.runID, spec.Agent, spec.ID, map[string]any{"error": err.Error()}))
		r.log.ErrorContext(ctx, "crew.task.error", slog.String("task_id", spec.ID), slog.String("error", err.Error()))
		return errors.As(err).WithContext("task", spec.ID).WithContext("agent", spec.Agent)
	}
	span.SetStatus(codes.Ok, "")
	r.crew.emitter.Emit(ctx, core.NewEvent(core.EventTaskCompleted, r.runID, spec.Agent, spec.ID, nil))
	r.log.InfoContext(ctx, "crew.task.end", slog.String("task_id", spec.ID), slog.Duration("duration", task.Duration()))
	return nil
}

// prompt renders the task description followed by the expected output and
// the outputs of the tasks it depends on. Callers hold r.mu.
func (r *run) prompt(spec TaskSpec) (string, error) {
	desc, err := spec.Render(r.data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(desc)
	if expected := strings.TrimSpace(spec.ExpectedOutput); expected != "" {
		b.WriteString("\n\nExpected output:\n")
		b.WriteString(expected)
	}
	if len(spec.DependsOn) > 0 {
		b.WriteString("\n\nResults from previous tasks:")
		for _, dep := range spec.DependsOn {
			agentID := r.tasks[dep].AssignedTo
			role := agentID
			if a, ok := r.crew.def.Agent(agentID); ok && a.Role != "" {
				role = a.Role
			}
			fmt.Fprintf(&b, "\n\n### %s (%s)\n%s", dep, role, r.outputs[dep])
		}
	}
	return b.String(), nil
}
