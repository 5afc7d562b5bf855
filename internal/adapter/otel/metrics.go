package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cadence"

// Metrics holds all Cadence metric instruments.
type Metrics struct {
	DecisionsPermitted metric.Int64Counter
	DecisionsDenied    metric.Int64Counter
	ViolationsDetected metric.Int64Counter
	AuditRecorded      metric.Int64Counter
	AuditFallbacks     metric.Int64Counter
	AuditQueryDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsPermitted, err = meter.Int64Counter("cadence.decisions.permitted",
		metric.WithDescription("Number of authorization checks that permitted access"))
	if err != nil {
		return nil, err
	}

	m.DecisionsDenied, err = meter.Int64Counter("cadence.decisions.denied",
		metric.WithDescription("Number of authorization checks that denied access"))
	if err != nil {
		return nil, err
	}

	m.ViolationsDetected, err = meter.Int64Counter("cadence.decisions.violations",
		metric.WithDescription("Number of isolation violations detected"))
	if err != nil {
		return nil, err
	}

	m.AuditRecorded, err = meter.Int64Counter("cadence.audit.recorded",
		metric.WithDescription("Number of audit events persisted"))
	if err != nil {
		return nil, err
	}

	m.AuditFallbacks, err = meter.Int64Counter("cadence.audit.fallbacks",
		metric.WithDescription("Number of audit events diverted to the log fallback"))
	if err != nil {
		return nil, err
	}

	m.AuditQueryDuration, err = meter.Float64Histogram("cadence.audit.query_seconds",
		metric.WithDescription("Audit query duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
