package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "trialscout"

// Metrics holds all TrialScout metric instruments.
type Metrics struct {
	MatchRequests   metric.Int64Counter
	TrialsEvaluated metric.Int64Counter
	TrialsFailed    metric.Int64Counter
	RegistryFetches metric.Int64Counter
	MatchDuration   metric.Float64Histogram
	VerdictScore    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.MatchRequests, err = meter.Int64Counter("trialscout.match.requests",
		metric.WithDescription("Number of match requests started"))
	if err != nil {
		return nil, err
	}

	m.TrialsEvaluated, err = meter.Int64Counter("trialscout.trials.evaluated",
		metric.WithDescription("Number of trials successfully scored"))
	if err != nil {
		return nil, err
	}

	m.TrialsFailed, err = meter.Int64Counter("trialscout.trials.failed",
		metric.WithDescription("Number of trials that could not be evaluated"))
	if err != nil {
		return nil, err
	}

	m.RegistryFetches, err = meter.Int64Counter("trialscout.registry.fetches",
		metric.WithDescription("Number of registry searches that missed the cache"))
	if err != nil {
		return nil, err
	}

	m.MatchDuration, err = meter.Float64Histogram("trialscout.match.duration_seconds",
		metric.WithDescription("Match request duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.VerdictScore, err = meter.Float64Histogram("trialscout.verdict.score",
		metric.WithDescription("Distribution of match scores"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
