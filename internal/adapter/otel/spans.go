package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cadence"

// StartDecisionSpan starts a span for an authorization check.
func StartDecisionSpan(ctx context.Context, principalID, operation, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decision",
		trace.WithAttributes(
			attribute.String("principal.id", principalID),
			attribute.String("decision.operation", operation),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartAuditSpan starts a span for an audit trail operation.
func StartAuditSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "audit."+op)
}

// StartTenantSpan starts a span for a tenant lifecycle operation.
func StartTenantSpan(ctx context.Context, op, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenant."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
		),
	)
}
