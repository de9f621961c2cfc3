package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/trialscout/trialscout/internal/domain"
)

func TestParseVerdictCleanJSON(t *testing.T) {
	raw := `{
		"is_eligible": true,
		"match_score": 0.85,
		"inclusion_matches": ["age within range", "HbA1c between 7 and 10"],
		"inclusion_mismatches": [],
		"exclusion_violations": [],
		"exclusion_passes": ["not pregnant (male patient)"],
		"explanation": "Good candidate.",
		"reasoning": "All inclusion criteria met."
	}`

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Eligible || v.Score != 0.85 {
		t.Fatalf("unexpected verdict: eligible=%v score=%v", v.Eligible, v.Score)
	}
	if len(v.InclusionMatches) != 2 || len(v.ExclusionPasses) != 1 {
		t.Fatalf("criterion lists lost: %+v", v)
	}
	if v.Explanation != "Good candidate." {
		t.Fatalf("unexpected explanation: %q", v.Explanation)
	}
}

func TestParseVerdictEmbeddedInProse(t *testing.T) {
	raw := `Here is my analysis: {"eligible": true, "score": 0.85, "explanation": "...", "inclusion_matches": [], "inclusion_mismatches": [], "exclusion_violations": [], "exclusion_passes": []} Let me know if you need more.`

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Eligible || v.Score != 0.85 {
		t.Fatalf("unexpected verdict: eligible=%v score=%v", v.Eligible, v.Score)
	}
}

func TestParseVerdictMarkdownFence(t *testing.T) {
	raw := "Sure, here is the verdict:\n```json\n{\"is_eligible\": false, \"match_score\": 0.2, \"explanation\": \"Too young.\"}\n```\n"

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v.Eligible || v.Score != 0.2 {
		t.Fatalf("unexpected verdict: eligible=%v score=%v", v.Eligible, v.Score)
	}
}

func TestParseVerdictClampsScore(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"string above range", `{"is_eligible": true, "match_score": "1.5"}`, 1.0},
		{"number above range", `{"is_eligible": true, "match_score": 2.3}`, 1.0},
		{"below range", `{"is_eligible": false, "match_score": -0.4}`, 0.0},
		{"string in range", `{"is_eligible": true, "match_score": "0.72"}`, 0.72},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := parseVerdict(tc.raw)
			if err != nil {
				t.Fatal(err)
			}
			if v.Score != tc.want {
				t.Fatalf("expected score %v, got %v", tc.want, v.Score)
			}
		})
	}
}

func TestParseVerdictDefaultsMissingLists(t *testing.T) {
	v, err := parseVerdict(`{"is_eligible": true, "match_score": 0.9}`)
	if err != nil {
		t.Fatal(err)
	}
	for name, list := range map[string][]string{
		"inclusion_matches":    v.InclusionMatches,
		"inclusion_mismatches": v.InclusionMismatches,
		"exclusion_violations": v.ExclusionViolations,
		"exclusion_passes":     v.ExclusionPasses,
	} {
		if list == nil || len(list) != 0 {
			t.Errorf("%s should default to an empty list, got %#v", name, list)
		}
	}
	if v.Explanation == "" {
		t.Error("missing explanation should get a placeholder")
	}
}

func TestParseVerdictUnrecoverable(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "The patient seems like a reasonable fit overall."},
		{"unterminated object", `{"is_eligible": true, "match_score": 0.5`},
		{"missing score", `{"is_eligible": true, "explanation": "ok"}`},
		{"missing eligibility", `{"match_score": 0.5}`},
		{"non-numeric score", `{"is_eligible": true, "match_score": "high"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.raw)
			if !errors.Is(err, domain.ErrParseFailure) {
				t.Fatalf("expected ErrParseFailure, got %v", err)
			}
		})
	}
}

func TestParseVerdictDowngradesContradiction(t *testing.T) {
	raw := `{
		"is_eligible": true,
		"match_score": 0.95,
		"exclusion_violations": ["currently pregnant"],
		"explanation": "Strong candidate."
	}`

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v.Eligible {
		t.Error("eligible verdict with exclusion violations must be downgraded")
	}
	if v.Score >= strongMatchThreshold {
		t.Errorf("ineligible verdict must stay below the strong-match band, got %v", v.Score)
	}
	if !strings.Contains(v.Explanation, "adjusted to ineligible") {
		t.Errorf("downgrade must be recorded in the explanation, got %q", v.Explanation)
	}
	if len(v.ExclusionViolations) != 1 {
		t.Errorf("violation list must survive the downgrade, got %+v", v.ExclusionViolations)
	}
}

func TestParseVerdictIneligibleNeverStrong(t *testing.T) {
	v, err := parseVerdict(`{"is_eligible": false, "match_score": 0.97, "explanation": "x"}`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Score >= strongMatchThreshold {
		t.Fatalf("ineligible score must be capped below %v, got %v", strongMatchThreshold, v.Score)
	}
}

func TestExtractJSONIgnoresBracesInsideStrings(t *testing.T) {
	raw := `{"is_eligible": true, "match_score": 0.6, "explanation": "criteria use {braces} and a \" quote"}`

	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(v.Explanation, "{braces}") {
		t.Fatalf("string content mangled: %q", v.Explanation)
	}
}
