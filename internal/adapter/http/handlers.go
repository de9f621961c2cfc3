package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/trialscout/trialscout/internal/domain/patient"
	"github.com/trialscout/trialscout/internal/domain/trial"
)

// bodyLimit caps request bodies; patient records and exported result sets
// are small.
const bodyLimit = 1 << 20

// MatchService is the matching pipeline the handlers drive.
type MatchService interface {
	Match(ctx context.Context, p patient.Record, condition string, maxTrials int, minScore float64) (trial.MatchReport, error)
	MatchOne(ctx context.Context, p patient.Record, nctID string) (trial.MatchResult, error)
}

// TrialDirectory is the read-only trial lookup surface.
type TrialDirectory interface {
	Search(ctx context.Context, condition string, maxResults int) ([]trial.Trial, error)
	GetByID(ctx context.Context, nctID string) (trial.Trial, error)
}

// Handlers bundles all HTTP handlers and their dependencies.
type Handlers struct {
	matcher MatchService
	trials  TrialDirectory
}

// NewHandlers creates the handler set.
func NewHandlers(matcher MatchService, trials TrialDirectory) *Handlers {
	return &Handlers{matcher: matcher, trials: trials}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type matchRequest struct {
	Patient   patient.Record `json:"patient"`
	Condition string         `json:"condition"`
	MaxTrials int            `json:"max_trials"`
	MinScore  float64        `json:"min_score"`
}

// MatchPatient handles POST /api/v1/match: search candidate trials for the
// condition and return the ranked match report. The condition may come from
// the request body or the condition query parameter.
func (h *Handlers) MatchPatient(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[matchRequest](w, r, bodyLimit)
	if !ok {
		return
	}

	if q := r.URL.Query().Get("condition"); q != "" {
		req.Condition = q
	}
	if req.Condition == "" {
		writeError(w, http.StatusBadRequest, "condition is required")
		return
	}
	if req.MinScore < 0 || req.MinScore > 1 {
		writeError(w, http.StatusBadRequest, "min_score must be between 0.0 and 1.0")
		return
	}

	report, err := h.matcher.Match(r.Context(), req.Patient, req.Condition, req.MaxTrials, req.MinScore)
	if err != nil {
		writeDomainError(w, err, "no trials found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// MatchTrial handles POST /api/v1/match/{nctID}: evaluate the patient
// against one specific trial.
func (h *Handlers) MatchTrial(w http.ResponseWriter, r *http.Request) {
	nctID := urlParam(r, "nctID")

	rec, ok := readJSON[patient.Record](w, r, bodyLimit)
	if !ok {
		return
	}

	res, err := h.matcher.MatchOne(r.Context(), rec, nctID)
	if err != nil {
		writeDomainError(w, err, fmt.Sprintf("trial %s not found", nctID))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchTrials handles GET /api/v1/trials?condition=...&limit=...
func (h *Handlers) SearchTrials(w http.ResponseWriter, r *http.Request) {
	condition := r.URL.Query().Get("condition")
	if condition == "" {
		writeError(w, http.StatusBadRequest, "condition is required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	trials, err := h.trials.Search(r.Context(), condition, limit)
	if err != nil {
		writeDomainError(w, err, "no trials found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trials": trials,
		"count":  len(trials),
	})
}

// GetTrial handles GET /api/v1/trials/{nctID}.
func (h *Handlers) GetTrial(w http.ResponseWriter, r *http.Request) {
	nctID := urlParam(r, "nctID")

	t, err := h.trials.GetByID(r.Context(), nctID)
	if err != nil {
		writeDomainError(w, err, fmt.Sprintf("trial %s not found", nctID))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ExportCSV handles POST /api/v1/export/csv: render previously obtained
// match results as a CSV attachment.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	results, ok := readJSON[[]trial.MatchResult](w, r, bodyLimit)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=trial_matches.csv`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"NCT ID",
		"Trial Title",
		"Match Score",
		"Is Eligible",
		"Explanation",
		"Inclusion Matches",
		"Inclusion Mismatches",
		"Exclusion Violations",
	})
	for _, m := range results {
		eligible := "No"
		if m.Eligible {
			eligible = "Yes"
		}
		_ = cw.Write([]string{
			m.Trial.NCTID,
			m.Trial.Title,
			fmt.Sprintf("%.2f", m.Score),
			eligible,
			m.Explanation,
			strings.Join(m.InclusionMatches, "; "),
			strings.Join(m.InclusionMismatches, "; "),
			strings.Join(m.ExclusionViolations, "; "),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("failed to write CSV export", "error", err)
	}
}

// ExportJSON handles POST /api/v1/export/json: echo previously obtained
// match results as a JSON attachment.
func (h *Handlers) ExportJSON(w http.ResponseWriter, r *http.Request) {
	results, ok := readJSON[[]trial.MatchResult](w, r, bodyLimit)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename=trial_matches.json`)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		slog.Error("failed to write JSON export", "error", err)
	}
}
