// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/riskcrew/pkg/errors"
)

// Metrics records crew, tool, model, refresh and error instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	errorCounter        metric.Int64Counter
	recoveryCounter     metric.Int64Counter
	taskDuration        metric.Float64Histogram
	toolCalls           metric.Int64Counter
	kickoffs            metric.Int64Counter
	riskScore           metric.Float64Gauge
	healthStatus        metric.Int64Gauge
	circuitBreakerState metric.Int64Gauge
	llmLatency          metric.Float64Histogram
	refreshes           metric.Int64Counter
	refreshErrors       metric.Int64Counter
	refreshLatency      metric.Float64Histogram
}

// NewMetrics creates the riskcrew instruments on the global meter provider.
func NewMetrics(ctx context.Context) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter("riskcrew"))
}

// NewMetricsWithMeter creates the riskcrew instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	errorCounter, err := meter.Int64Counter(
		"riskcrew.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	recoveryCounter, err := meter.Int64Counter(
		"riskcrew.errors.recovered",
		metric.WithDescription("Successful error recoveries by code"),
	)
	if err != nil {
		return nil, err
	}
	taskDuration, err := meter.Float64Histogram(
		"riskcrew.task.duration",
		metric.WithDescription("Crew task duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter(
		"riskcrew.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome"),
	)
	if err != nil {
		return nil, err
	}
	kickoffs, err := meter.Int64Counter(
		"riskcrew.crew.kickoffs",
		metric.WithDescription("Crew kickoffs by process and outcome"),
	)
	if err != nil {
		return nil, err
	}
	riskScore, err := meter.Float64Gauge(
		"riskcrew.project.risk_score",
		metric.WithDescription("Overall risk score per project"),
	)
	if err != nil {
		return nil, err
	}
	healthStatus, err := meter.Int64Gauge(
		"riskcrew.health.status",
		metric.WithDescription("Component health status (0=unhealthy, 1=degraded, 2=healthy)"),
	)
	if err != nil {
		return nil, err
	}
	circuitBreakerState, err := meter.Int64Gauge(
		"riskcrew.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per component (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	llmLatency, err := meter.Float64Histogram(
		"riskcrew.llm.latency",
		metric.WithDescription("Model call latency by agent and model"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter(
		"riskcrew.refresh.count",
		metric.WithDescription("Score refresh runs"),
	)
	if err != nil {
		return nil, err
	}
	refreshErrors, err := meter.Int64Counter(
		"riskcrew.refresh.error.count",
		metric.WithDescription("Failed score refresh runs"),
	)
	if err != nil {
		return nil, err
	}
	refreshLatency, err := meter.Float64Histogram(
		"riskcrew.refresh.latency",
		metric.WithDescription("Score refresh duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		errorCounter:        errorCounter,
		recoveryCounter:     recoveryCounter,
		taskDuration:        taskDuration,
		toolCalls:           toolCalls,
		kickoffs:            kickoffs,
		riskScore:           riskScore,
		healthStatus:        healthStatus,
		circuitBreakerState: circuitBreakerState,
		llmLatency:          llmLatency,
		refreshes:           refreshes,
		refreshErrors:       refreshErrors,
		refreshLatency:      refreshLatency,
	}, nil
}

// RecordError increments the error counter for err in component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	recoverable := "false"
	if e := errors.As(err); e.Recoverable {
		recoverable = "true"
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
		attribute.String(AttrComponent, component),
		attribute.String("recoverable", recoverable),
	))
}

// RecordRecovery counts an error that was handled by retry or fallback.
func (m *Metrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}
	m.recoveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(code)),
	))
}

// RecordTask records how long a crew task took.
func (m *Metrics) RecordTask(ctx context.Context, taskID, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(TaskAttributes(taskID, status)...))
}

// RecordToolCall counts a tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool(AttrToolSuccess, success),
	))
}

// RecordKickoff counts a crew kickoff.
func (m *Metrics) RecordKickoff(ctx context.Context, process string, success bool) {
	if m == nil {
		return
	}
	m.kickoffs.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCrewProcess, process),
		attribute.Bool("success", success),
	))
}

// RecordRiskScore records the current overall score of a project.
func (m *Metrics) RecordRiskScore(ctx context.Context, project, level string, score float64) {
	if m == nil {
		return
	}
	m.riskScore.Record(ctx, score, metric.WithAttributes(
		attribute.String(AttrProject, project),
		attribute.String(AttrRiskLevel, level),
	))
}

// RecordHealthStatus records the health of a component (0=unhealthy, 1=degraded, 2=healthy).
func (m *Metrics) RecordHealthStatus(ctx context.Context, component string, status int64) {
	if m == nil {
		return
	}
	m.healthStatus.Record(ctx, status, metric.WithAttributes(attribute.String(AttrComponent, component)))
}

// RecordCircuitBreakerState records a breaker state (0=open, 1=half-open, 2=closed).
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, component string, state int64) {
	if m == nil {
		return
	}
	m.circuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String(AttrComponent, component)))
}

// RecordLLMLatency records how long one model call took.
func (m *Metrics) RecordLLMLatency(ctx context.Context, agentID, model string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.llmLatency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrLLMModel, model),
		attribute.Bool("success", success),
	))
}

// RecordRefresh counts a score refresh run and its duration. A non-nil err
// also counts as a failed run.
func (m *Metrics) RecordRefresh(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1)
	m.refreshLatency.Record(ctx, float64(d.Milliseconds()))
	if err != nil {
		m.refreshErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
		))
	}
}
