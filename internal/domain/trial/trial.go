// Package trial defines the Trial and MatchResult domain entities.
package trial

// Trial is a clinical trial record normalized from the registry.
// It is created by the registry client, cached, and read-only thereafter;
// a refresh after cache expiry produces a new value rather than mutating it.
type Trial struct {
	NCTID               string   `json:"nct_id"`
	Title               string   `json:"title"`
	BriefSummary        string   `json:"brief_summary,omitempty"`
	EligibilityCriteria string   `json:"eligibility_criteria"`
	MinimumAge          string   `json:"minimum_age,omitempty"`
	MaximumAge          string   `json:"maximum_age,omitempty"`
	Sex                 string   `json:"sex,omitempty"`
	Phase               string   `json:"phase,omitempty"`
	Enrollment          int      `json:"enrollment,omitempty"`
	Status              string   `json:"status,omitempty"`
	Locations           []string `json:"locations,omitempty"`
	Conditions          []string `json:"conditions,omitempty"`
	Interventions       []string `json:"interventions,omitempty"`
}

// Verdict is the structured eligibility judgment recovered from the
// reasoning backend for one patient/trial pair.
type Verdict struct {
	Eligible            bool     `json:"is_eligible"`
	Score               float64  `json:"match_score"`
	InclusionMatches    []string `json:"inclusion_matches"`
	InclusionMismatches []string `json:"inclusion_mismatches"`
	ExclusionViolations []string `json:"exclusion_violations"`
	ExclusionPasses     []string `json:"exclusion_passes"`
	Explanation         string   `json:"explanation"`
	Reasoning           string   `json:"reasoning,omitempty"`
}

// MatchResult pairs a trial with its verdict. Created once per
// (patient, trial) pair per request, never mutated, never persisted.
type MatchResult struct {
	Trial Trial `json:"trial"`
	Verdict
}

// Failure describes one trial that could not be evaluated.
type Failure struct {
	NCTID  string `json:"nct_id"`
	Reason string `json:"reason"`
}

// MatchReport is the outcome of a batch match: ranked results plus an
// explicit account of trials that could not be evaluated, so absence of a
// trial is never mistaken for ineligibility.
type MatchReport struct {
	Results     []MatchResult `json:"results"`
	Evaluated   int           `json:"evaluated"`
	Unevaluated int           `json:"unevaluated"`
	Failures    []Failure     `json:"failures,omitempty"`
}
