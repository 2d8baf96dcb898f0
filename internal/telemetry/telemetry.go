// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry records the metrics of the task server with OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InstrumentationName is the name of the meter and tracer used by the server.
const InstrumentationName = "github.com/go-a2a/a2a-taskd"

// Metrics holds the server instruments.
type Metrics struct {
	tasksSubmitted metric.Int64Counter
	tasksFinished  metric.Int64Counter
	taskDuration   metric.Float64Histogram
	eventsSent     metric.Int64Counter
	streamsActive  metric.Int64UpDownCounter
	rpcLatency     metric.Float64Histogram
}

// New creates the instruments on m. An instrument that cannot be created is reported through
// otel.Handle and replaced by a no-op.
func New(m metric.Meter) *Metrics {
	var (
		ms  Metrics
		err error
	)

	ms.tasksSubmitted, err = m.Int64Counter("a2a.tasks.submitted",
		metric.WithDescription("Count of submitted tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		otel.Handle(err)
		ms.tasksSubmitted = noop.Int64Counter{}
	}

	ms.tasksFinished, err = m.Int64Counter("a2a.tasks.finished",
		metric.WithDescription("Count of tasks reaching a terminal state"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		otel.Handle(err)
		ms.tasksFinished = noop.Int64Counter{}
	}

	ms.taskDuration, err = m.Float64Histogram("a2a.task.duration",
		metric.WithDescription("Time from task creation to its terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		ms.taskDuration = noop.Float64Histogram{}
	}

	ms.eventsSent, err = m.Int64Counter("a2a.events.published",
		metric.WithDescription("Count of task events published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		otel.Handle(err)
		ms.eventsSent = noop.Int64Counter{}
	}

	ms.streamsActive, err = m.Int64UpDownCounter("a2a.streams.active",
		metric.WithDescription("Number of attached event streams"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		otel.Handle(err)
		ms.streamsActive = noop.Int64UpDownCounter{}
	}

	ms.rpcLatency, err = m.Float64Histogram("a2a.rpc.duration",
		metric.WithDescription("Latency of JSON-RPC calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		ms.rpcLatency = noop.Float64Histogram{}
	}

	return &ms
}

// Default creates the instruments on the global meter provider.
func Default() *Metrics {
	return New(otel.GetMeterProvider().Meter(InstrumentationName))
}

// TaskSubmitted records a new task submitted through mode ("sync" or "stream").
func (m *Metrics) TaskSubmitted(ctx context.Context, mode string) {
	m.tasksSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// TaskFinished records a task reaching state after running for d.
func (m *Metrics) TaskFinished(ctx context.Context, state string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.tasksFinished.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, d.Seconds(), attrs)
}

// EventPublished records one published event of the given type.
func (m *Metrics) EventPublished(ctx context.Context, eventType string) {
	m.eventsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// StreamOpened records an attached stream.
func (m *Metrics) StreamOpened(ctx context.Context, transport string) {
	m.streamsActive.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// StreamClosed records a detached stream.
func (m *Metrics) StreamClosed(ctx context.Context, transport string) {
	m.streamsActive.Add(ctx, -1, metric.WithAttributes(attribute.String("transport", transport)))
}

// RPCHandled records a JSON-RPC call of method answered with code (0 on success) after d.
func (m *Metrics) RPCHandled(ctx context.Context, method string, code int, d time.Duration) {
	m.rpcLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.Int("rpc.jsonrpc.error_code", code),
	))
}

// PrometheusProvider is a meter provider exported through a dedicated Prometheus registry.
type PrometheusProvider struct {
	*sdkmetric.MeterProvider
	handler http.Handler
}

// NewPrometheusProvider creates a meter provider whose metrics are served by Handler.
func NewPrometheusProvider() (*PrometheusProvider, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &PrometheusProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Handler returns the Prometheus scrape handler.
func (p *PrometheusProvider) Handler() http.Handler {
	return p.handler
}

// Metrics creates the server instruments on p.
func (p *PrometheusProvider) Metrics() *Metrics {
	return New(p.Meter(InstrumentationName))
}
