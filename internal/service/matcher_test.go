package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/trialscout/trialscout/internal/config"
	"github.com/trialscout/trialscout/internal/domain"
	"github.com/trialscout/trialscout/internal/domain/patient"
	"github.com/trialscout/trialscout/internal/domain/trial"
)

type fakeRegistry struct {
	trials     []trial.Trial
	searchErr  error
	byID       map[string]trial.Trial
	lastLimit  int
	searchHits int
}

func (f *fakeRegistry) Search(_ context.Context, _ string, maxResults int) ([]trial.Trial, error) {
	f.searchHits++
	f.lastLimit = maxResults
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.trials) > maxResults {
		return f.trials[:maxResults], nil
	}
	return f.trials, nil
}

func (f *fakeRegistry) GetByID(_ context.Context, nctID string) (trial.Trial, error) {
	t, ok := f.byID[nctID]
	if !ok {
		return trial.Trial{}, fmt.Errorf("trial %s: %w", nctID, domain.ErrNotFound)
	}
	return t, nil
}

// fakeProvider answers per trial, keyed on the NCT ID embedded in the prompt.
type fakeProvider struct {
	responses map[string]string
	errs      map[string]error
	fn        func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, prompt)
	}
	for id, err := range f.errs {
		if strings.Contains(prompt, "NCT ID: "+id) {
			return "", err
		}
	}
	for id, resp := range f.responses {
		if strings.Contains(prompt, "NCT ID: "+id) {
			return resp, nil
		}
	}
	return "", errors.New("no canned response for prompt")
}

func verdictJSON(eligible bool, score float64) string {
	return fmt.Sprintf(`{"is_eligible": %t, "match_score": %g, "explanation": "canned"}`, eligible, score)
}

func trialsWithIDs(ids ...string) []trial.Trial {
	out := make([]trial.Trial, 0, len(ids))
	for _, id := range ids {
		out = append(out, trial.Trial{NCTID: id, Title: "Trial " + id, EligibilityCriteria: "Adults."})
	}
	return out
}

func matcherCfg() config.Matcher {
	return config.Matcher{MaxParallel: 4, MaxTrials: 50}
}

func validPatient() patient.Record {
	return patient.Record{Age: 55, Gender: patient.GenderMale}
}

func TestMatchRanksByScoreDescending(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1", "NCT2", "NCT3")}
	prov := &fakeProvider{responses: map[string]string{
		"NCT1": verdictJSON(true, 0.9),
		"NCT2": verdictJSON(false, 0.2),
		"NCT3": verdictJSON(true, 0.65),
	}}

	m := NewMatcher(reg, prov, matcherCfg())
	report, err := m.Match(context.Background(), validPatient(), "diabetes", 10, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0.9, 0.65, 0.2}
	if len(report.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(report.Results))
	}
	for i, w := range want {
		if report.Results[i].Score != w {
			t.Errorf("position %d: expected score %v, got %v", i, w, report.Results[i].Score)
		}
	}
}

func TestMatchAppliesMinScore(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1", "NCT2", "NCT3")}
	prov := &fakeProvider{responses: map[string]string{
		"NCT1": verdictJSON(true, 0.9),
		"NCT2": verdictJSON(false, 0.2),
		"NCT3": verdictJSON(true, 0.65),
	}}

	m := NewMatcher(reg, prov, matcherCfg())
	report, err := m.Match(context.Background(), validPatient(), "diabetes", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("expected the 0.2 entry to be filtered, got %d results", len(report.Results))
	}
	// Filtered trials were still evaluated.
	if report.Evaluated != 3 || report.Unevaluated != 0 {
		t.Fatalf("expected 3 evaluated / 0 unevaluated, got %d / %d", report.Evaluated, report.Unevaluated)
	}
}

func TestMatchToleratesPerTrialFailures(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1", "NCT2", "NCT3", "NCT4", "NCT5")}
	prov := &fakeProvider{
		responses: map[string]string{
			"NCT1": verdictJSON(true, 0.8),
			"NCT3": verdictJSON(true, 0.6),
			"NCT4": "I could not produce a verdict, sorry.",
			"NCT5": verdictJSON(false, 0.1),
		},
		errs: map[string]error{
			"NCT2": fmt.Errorf("timeout: %w", domain.ErrProviderUnavailable),
		},
	}

	m := NewMatcher(reg, prov, matcherCfg())
	report, err := m.Match(context.Background(), validPatient(), "diabetes", 10, 0)
	if err != nil {
		t.Fatalf("per-trial failures must not fail the batch: %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("expected 3 scorable results, got %d", len(report.Results))
	}
	if report.Evaluated != 3 || report.Unevaluated != 2 {
		t.Fatalf("expected 3 evaluated / 2 unevaluated, got %d / %d", report.Evaluated, report.Unevaluated)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %+v", report.Failures)
	}
	for _, r := range report.Results {
		if r.Trial.NCTID == "NCT2" || r.Trial.NCTID == "NCT4" {
			t.Errorf("failed trial %s must not appear with a fabricated score", r.Trial.NCTID)
		}
	}
}

func TestMatchRegistryFailureAborts(t *testing.T) {
	reg := &fakeRegistry{searchErr: fmt.Errorf("search: %w", domain.ErrRegistryUnavailable)}
	m := NewMatcher(reg, &fakeProvider{}, matcherCfg())

	_, err := m.Match(context.Background(), validPatient(), "diabetes", 10, 0)
	if !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}

func TestMatchValidationRejectedBeforeSearch(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1")}
	m := NewMatcher(reg, &fakeProvider{}, matcherCfg())

	bad := patient.Record{Age: -1, Gender: patient.GenderMale}
	if _, err := m.Match(context.Background(), bad, "diabetes", 10, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if _, err := m.Match(context.Background(), validPatient(), "", 10, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty condition, got %v", err)
	}

	if reg.searchHits != 0 {
		t.Fatalf("no search may happen before validation passes, got %d", reg.searchHits)
	}
}

func TestMatchZeroTrialsIsNotAnError(t *testing.T) {
	reg := &fakeRegistry{}
	m := NewMatcher(reg, &fakeProvider{}, matcherCfg())

	report, err := m.Match(context.Background(), validPatient(), "extremely rare condition", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 0 || report.Unevaluated != 0 {
		t.Fatalf("expected an empty report, got %+v", report)
	}
}

func TestMatchCapsRequestedTrials(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1")}
	prov := &fakeProvider{responses: map[string]string{"NCT1": verdictJSON(true, 0.5)}}

	cfg := config.Matcher{MaxParallel: 2, MaxTrials: 25}
	m := NewMatcher(reg, prov, cfg)

	if _, err := m.Match(context.Background(), validPatient(), "diabetes", 500, 0); err != nil {
		t.Fatal(err)
	}
	if reg.lastLimit != 25 {
		t.Fatalf("expected the search limit capped at 25, got %d", reg.lastLimit)
	}

	if _, err := m.Match(context.Background(), validPatient(), "diabetes", 0, 0); err != nil {
		t.Fatal(err)
	}
	if reg.lastLimit != 25 {
		t.Fatalf("expected the default limit 25, got %d", reg.lastLimit)
	}
}

func TestMatchDeadlineReturnsCompletedResults(t *testing.T) {
	reg := &fakeRegistry{trials: trialsWithIDs("NCT1", "NCT2")}
	prov := &fakeProvider{fn: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "NCT ID: NCT2") {
			<-ctx.Done()
			return "", fmt.Errorf("aborted: %w: %w", domain.ErrProviderUnavailable, ctx.Err())
		}
		return verdictJSON(true, 0.7), nil
	}}

	m := NewMatcher(reg, prov, matcherCfg())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	report, err := m.Match(ctx, validPatient(), "diabetes", 10, 0)
	if err != nil {
		t.Fatalf("deadline expiry must yield partial results, got %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Trial.NCTID != "NCT1" {
		t.Fatalf("expected the completed trial only, got %+v", report.Results)
	}
	if report.Unevaluated != 1 {
		t.Fatalf("abandoned trial must be counted as unevaluated, got %d", report.Unevaluated)
	}
}

func TestMatchOne(t *testing.T) {
	reg := &fakeRegistry{byID: map[string]trial.Trial{
		"NCT1": {NCTID: "NCT1", Title: "Trial NCT1", EligibilityCriteria: "Adults."},
	}}
	prov := &fakeProvider{responses: map[string]string{"NCT1": verdictJSON(true, 0.77)}}

	m := NewMatcher(reg, prov, matcherCfg())

	res, err := m.MatchOne(context.Background(), validPatient(), "NCT1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Trial.NCTID != "NCT1" || res.Score != 0.77 || !res.Eligible {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := m.MatchOne(context.Background(), validPatient(), "NCT404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := m.MatchOne(context.Background(), validPatient(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty identifier, got %v", err)
	}
}

func TestMatchOneParseFailure(t *testing.T) {
	reg := &fakeRegistry{byID: map[string]trial.Trial{
		"NCT1": {NCTID: "NCT1", Title: "Trial NCT1"},
	}}
	prov := &fakeProvider{responses: map[string]string{"NCT1": "no json here"}}

	m := NewMatcher(reg, prov, matcherCfg())

	_, err := m.MatchOne(context.Background(), validPatient(), "NCT1")
	if !errors.Is(err, domain.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}
}

func TestFailureKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", domain.ErrProviderUnavailable), "provider_unavailable"},
		{fmt.Errorf("x: %w", domain.ErrParseFailure), "parse_failure"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := FailureKind(tc.err); got != tc.want {
			t.Errorf("FailureKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
