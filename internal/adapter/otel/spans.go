package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "trialscout"

// StartMatchSpan starts a span for a batch match request.
func StartMatchSpan(ctx context.Context, matchID, condition string, maxTrials int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "match",
		trace.WithAttributes(
			attribute.String("match.id", matchID),
			attribute.String("match.condition", condition),
			attribute.Int("match.max_trials", maxTrials),
		),
	)
}

// StartTrialSpan starts a span for a single trial evaluation within a match.
func StartTrialSpan(ctx context.Context, nctID, providerName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "trial.evaluate",
		trace.WithAttributes(
			attribute.String("trial.nct_id", nctID),
			attribute.String("provider.name", providerName),
		),
	)
}
