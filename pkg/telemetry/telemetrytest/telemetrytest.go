// SPDX-License-Identifier: Apache-2.0

// Package telemetrytest records riskcrew metrics in memory so tests can
// assert on what was exported.
package telemetrytest

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jllopis/riskcrew/pkg/telemetry"
)

// Recorder holds metrics backed by a manual reader.
type Recorder struct {
	Metrics *telemetry.Metrics
	reader  *sdkmetric.ManualReader
}

// New returns a Recorder whose provider is shut down when t ends.
func New(t testing.TB) *Recorder {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := telemetry.NewMetricsWithMeter(mp.Meter("riskcrew"))
	if err != nil {
		t.Fatalf("create metrics: %v", err)
	}
	return &Recorder{Metrics: m, reader: reader}
}

// Collect returns the exported instruments keyed by name.
func (r *Recorder) Collect(t testing.TB) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// Sum adds up a counter, or the number of histogram records.
func (r *Recorder) Sum(t testing.TB, name string) int64 {
	t.Helper()
	m, ok := r.Collect(t)[name]
	if !ok {
		return 0
	}
	var total int64
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			total += int64(dp.Count)
		}
	default:
		t.Fatalf("unsupported data type %T for %s", m.Data, name)
	}
	return total
}

// Gauge returns the int64 gauge value of name for the point whose attribute
// key equals value.
func (r *Recorder) Gauge(t testing.TB, name, key, value string) (int64, bool) {
	t.Helper()
	m, ok := r.Collect(t)[name]
	if !ok {
		return 0, false
	}
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("%s is %T, not an int64 gauge", name, m.Data)
	}
	for _, dp := range g.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}
