package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	otelobs "github.com/trialscout/trialscout/internal/adapter/otel"
	"github.com/trialscout/trialscout/internal/config"
	"github.com/trialscout/trialscout/internal/domain"
	"github.com/trialscout/trialscout/internal/domain/patient"
	"github.com/trialscout/trialscout/internal/domain/trial"
	"github.com/trialscout/trialscout/internal/port/provider"
	"github.com/trialscout/trialscout/internal/resilience"
)

// Registry is the trial lookup surface the matcher depends on.
type Registry interface {
	Search(ctx context.Context, condition string, maxResults int) ([]trial.Trial, error)
	GetByID(ctx context.Context, nctID string) (trial.Trial, error)
}

// Matcher drives the match pipeline: registry search, per-trial prompt
// construction, reasoning-provider call and verdict parsing, then ranking.
type Matcher struct {
	registry  Registry
	provider  provider.Provider
	pool      *resilience.Pool
	maxTrials int
	metrics   *otelobs.Metrics
}

// NewMatcher creates the match orchestrator. MaxParallel bounds concurrent
// provider calls across one request; MaxTrials caps how many candidates a
// single request may evaluate.
func NewMatcher(reg Registry, prov provider.Provider, cfg config.Matcher) *Matcher {
	return &Matcher{
		registry:  reg,
		provider:  prov,
		pool:      resilience.NewPool(cfg.MaxParallel),
		maxTrials: cfg.MaxTrials,
	}
}

// SetMetrics attaches match instruments. Without them the matcher runs
// unobserved.
func (m *Matcher) SetMetrics(mt *otelobs.Metrics) {
	m.metrics = mt
}

// Match searches candidate trials for the condition and evaluates each one
// against the patient, concurrently up to the configured fan-out. The
// report carries results sorted by score descending and filtered to
// score >= minScore, plus an explicit count of trials that could not be
// evaluated: a trial the provider or parser failed on is omitted and
// reported, never given a fabricated score. On deadline expiry in-flight
// evaluations are abandoned and completed results are still returned.
func (m *Matcher) Match(ctx context.Context, p patient.Record, condition string, maxTrials int, minScore float64) (trial.MatchReport, error) {
	if err := p.Validate(); err != nil {
		return trial.MatchReport{}, err
	}
	if condition == "" {
		return trial.MatchReport{}, fmt.Errorf("condition is required: %w", domain.ErrValidation)
	}
	if maxTrials <= 0 || maxTrials > m.maxTrials {
		maxTrials = m.maxTrials
	}

	matchID := uuid.NewString()
	ctx, span := otelobs.StartMatchSpan(ctx, matchID, condition, maxTrials)
	defer span.End()
	started := time.Now()
	if m.metrics != nil {
		m.metrics.MatchRequests.Add(ctx, 1)
	}

	trials, err := m.registry.Search(ctx, condition, maxTrials)
	if err != nil {
		return trial.MatchReport{}, err
	}
	if len(trials) == 0 {
		slog.Info("no recruiting trials found", "match_id", matchID, "condition", condition)
		return trial.MatchReport{Results: []trial.MatchResult{}}, nil
	}

	var (
		mu       sync.Mutex
		scored   []trial.MatchResult
		failures []trial.Failure
	)

	var wg sync.WaitGroup
	for _, t := range trials {
		wg.Add(1)
		go func(t trial.Trial) {
			defer wg.Done()
			err := m.pool.Run(ctx, func() error {
				res, err := m.evaluate(ctx, p, t)
				if err != nil {
					return err
				}
				mu.Lock()
				scored = append(scored, res)
				mu.Unlock()
				return nil
			})
			if err != nil {
				slog.Warn("trial evaluation failed",
					"match_id", matchID, "nct_id", t.NCTID,
					"kind", FailureKind(err), "error", err)
				mu.Lock()
				failures = append(failures, trial.Failure{NCTID: t.NCTID, Reason: err.Error()})
				mu.Unlock()
			}
		}(t)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("match deadline expired, returning completed results",
			"match_id", matchID, "condition", condition)
	}

	mu.Lock()
	results := make([]trial.MatchResult, len(scored))
	copy(results, scored)
	collected := make([]trial.Failure, len(failures))
	copy(collected, failures)
	mu.Unlock()

	// Completion order never leaks into output order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	evaluated := len(results)
	filtered := results[:0:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	if filtered == nil {
		filtered = []trial.MatchResult{}
	}

	report := trial.MatchReport{
		Results:     filtered,
		Evaluated:   evaluated,
		Unevaluated: len(trials) - evaluated,
		Failures:    collected,
	}

	if m.metrics != nil {
		m.metrics.TrialsEvaluated.Add(ctx, int64(evaluated))
		m.metrics.TrialsFailed.Add(ctx, int64(report.Unevaluated))
		m.metrics.MatchDuration.Record(ctx, time.Since(started).Seconds())
	}
	slog.Info("match completed",
		"match_id", matchID,
		"condition", condition,
		"evaluated", evaluated,
		"unevaluated", report.Unevaluated,
		"returned", len(filtered),
		"duration", time.Since(started))

	return report, nil
}

// MatchOne evaluates the patient against a single trial fetched by NCT
// identifier, using the same prompt/provider/parser pipeline as Match.
func (m *Matcher) MatchOne(ctx context.Context, p patient.Record, nctID string) (trial.MatchResult, error) {
	if err := p.Validate(); err != nil {
		return trial.MatchResult{}, err
	}
	if nctID == "" {
		return trial.MatchResult{}, fmt.Errorf("trial identifier is required: %w", domain.ErrValidation)
	}

	t, err := m.registry.GetByID(ctx, nctID)
	if err != nil {
		return trial.MatchResult{}, err
	}

	var res trial.MatchResult
	err = m.pool.Run(ctx, func() error {
		var err error
		res, err = m.evaluate(ctx, p, t)
		return err
	})
	if err != nil {
		return trial.MatchResult{}, err
	}
	return res, nil
}

// evaluate runs one (patient, trial) pair through the pipeline.
func (m *Matcher) evaluate(ctx context.Context, p patient.Record, t trial.Trial) (trial.MatchResult, error) {
	ctx, span := otelobs.StartTrialSpan(ctx, t.NCTID, m.provider.Name())
	defer span.End()

	raw, err := m.provider.Complete(ctx, buildPrompt(p, t))
	if err != nil {
		return trial.MatchResult{}, fmt.Errorf("evaluate %s: %w", t.NCTID, err)
	}

	v, err := parseVerdict(raw)
	if err != nil {
		return trial.MatchResult{}, fmt.Errorf("evaluate %s: %w", t.NCTID, err)
	}

	if m.metrics != nil {
		m.metrics.VerdictScore.Record(ctx, v.Score)
	}
	slog.Debug("trial evaluated",
		"nct_id", t.NCTID, "score", v.Score, "eligible", v.Eligible)

	return trial.MatchResult{Trial: t, Verdict: v}, nil
}

// FailureKind maps an evaluation error to the taxonomy bucket used in
// reports and logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrParseFailure):
		return "parse_failure"
	default:
		return "internal"
	}
}
