package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "councild"

// StartDeliberationSpan starts a span covering a full deliberation run.
func StartDeliberationSpan(ctx context.Context, deliberationID string, roleCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deliberation",
		trace.WithAttributes(
			attribute.String("deliberation.id", deliberationID),
			attribute.Int("deliberation.roles", roleCount),
		),
	)
}

// StartRoundSpan starts a span for one deliberation round.
func StartRoundSpan(ctx context.Context, deliberationID string, round int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "round",
		trace.WithAttributes(
			attribute.String("deliberation.id", deliberationID),
			attribute.Int("round.number", round),
		),
	)
}

// StartOpinionSpan starts a span for a single role's opinion call.
func StartOpinionSpan(ctx context.Context, roleID string, round int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "opinion",
		trace.WithAttributes(
			attribute.String("role.id", roleID),
			attribute.Int("round.number", round),
		),
	)
}
