package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/synchub/backend"

// Metrics holds the engine's instruments. A nil *Metrics records nothing.
type Metrics struct {
	recordsDispatched metric.Int64Counter
	connectorRequests metric.Int64Counter
	connectorLatency  metric.Float64Histogram
	pulledRecords     metric.Int64Counter
	exportedRecords   metric.Int64Counter
	webhookDeliveries metric.Int64Counter
	httpRequests      metric.Int64Counter
	httpLatency       metric.Float64Histogram
}

// NewMetrics creates the instruments on the given provider, or on the
// global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.recordsDispatched, err = meter.Int64Counter("sync.records.dispatched",
		metric.WithDescription("Sync queue records delivered to an ERP, by outcome")); err != nil {
		return nil, err
	}
	if m.connectorRequests, err = meter.Int64Counter("connector.requests",
		metric.WithDescription("HTTP requests issued by API connectors, by status class")); err != nil {
		return nil, err
	}
	if m.connectorLatency, err = meter.Float64Histogram("connector.request.duration",
		metric.WithDescription("Connector request latency including retries"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.pulledRecords, err = meter.Int64Counter("connector.pull.records",
		metric.WithDescription("Records pulled from external APIs, by outcome")); err != nil {
		return nil, err
	}
	if m.exportedRecords, err = meter.Int64Counter("connector.push.records",
		metric.WithDescription("Records pushed to external APIs, by outcome")); err != nil {
		return nil, err
	}
	if m.webhookDeliveries, err = meter.Int64Counter("webhook.deliveries",
		metric.WithDescription("Webhook delivery attempts, by event and outcome")); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Admin API requests, by route and status class")); err != nil {
		return nil, err
	}
	if m.httpLatency, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Admin API request latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordDispatch counts one dispatched sync record
func (m *Metrics) RecordDispatch(ctx context.Context, entityType, erpType string, success bool) {
	if m == nil {
		return
	}
	m.recordsDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", entityType),
		attribute.String("erp_type", erpType),
		attribute.String("outcome", outcome(success)),
	))
}

// RecordConnectorRequest counts one connector request and its latency.
// status is 0 when no response was received.
func (m *Metrics) RecordConnectorRequest(ctx context.Context, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status_class", statusClass(status)),
	)
	m.connectorRequests.Add(ctx, 1, attrs)
	m.connectorLatency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordPull counts pulled records of one resource run
func (m *Metrics) RecordPull(ctx context.Context, kind string, imported, failed, staged int) {
	if m == nil {
		return
	}
	for outcome, n := range map[string]int{"imported": imported, "failed": failed, "staged": staged} {
		if n > 0 {
			m.pulledRecords.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("kind", kind),
				attribute.String("outcome", outcome),
			))
		}
	}
}

// RecordExport counts one exported record
func (m *Metrics) RecordExport(ctx context.Context, kind string, success bool) {
	if m == nil {
		return
	}
	m.exportedRecords.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome(success)),
	))
}

// RecordWebhookDelivery counts one delivery attempt
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, event string, success bool) {
	if m == nil {
		return
	}
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome(success)),
	))
}

// RecordHTTPRequest counts one admin API request. route is the matched
// pattern, never the raw path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "none"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
