package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trialscout/trialscout/internal/domain"
	"github.com/trialscout/trialscout/internal/domain/trial"
)

// strongMatchThreshold is the score band boundary above which a verdict is
// presented as a strong match. An ineligible verdict must stay below it.
const strongMatchThreshold = 0.9

// ineligibleScoreCap is applied when a verdict is forced to ineligible so
// the score cannot land in the strong-match band.
const ineligibleScoreCap = 0.8

// flexFloat decodes a JSON number that backends sometimes emit as a string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// rawVerdict tolerates both the instructed field names and the short
// variants some backends substitute.
type rawVerdict struct {
	IsEligible          *bool      `json:"is_eligible"`
	Eligible            *bool      `json:"eligible"`
	MatchScore          *flexFloat `json:"match_score"`
	Score               *flexFloat `json:"score"`
	InclusionMatches    []string   `json:"inclusion_matches"`
	InclusionMismatches []string   `json:"inclusion_mismatches"`
	ExclusionViolations []string   `json:"exclusion_violations"`
	ExclusionPasses     []string   `json:"exclusion_passes"`
	Explanation         string     `json:"explanation"`
	Reasoning           string     `json:"reasoning"`
}

// parseVerdict recovers a structured verdict from the raw backend text.
// The backend is instructed to return bare JSON but is not trustworthy:
// markdown fences are stripped, the first balanced object is extracted from
// surrounding prose, string-typed scores are coerced and clamped to [0, 1],
// and absent list fields default to empty. A response with no locatable
// object or without both the eligibility flag and the score is unusable and
// wraps ErrParseFailure; the caller must never substitute a fabricated
// score for it.
func parseVerdict(raw string) (trial.Verdict, error) {
	obj, ok := extractJSON(raw)
	if !ok {
		return trial.Verdict{}, fmt.Errorf("no JSON object in response: %w", domain.ErrParseFailure)
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(obj), &rv); err != nil {
		return trial.Verdict{}, fmt.Errorf("decode verdict: %w: %w", domain.ErrParseFailure, err)
	}

	eligible := rv.IsEligible
	if eligible == nil {
		eligible = rv.Eligible
	}
	score := rv.MatchScore
	if score == nil {
		score = rv.Score
	}
	if eligible == nil || score == nil {
		return trial.Verdict{}, fmt.Errorf("verdict missing eligibility or score: %w", domain.ErrParseFailure)
	}

	v := trial.Verdict{
		Eligible:            *eligible,
		Score:               clamp(float64(*score), 0, 1),
		InclusionMatches:    orEmpty(rv.InclusionMatches),
		InclusionMismatches: orEmpty(rv.InclusionMismatches),
		ExclusionViolations: orEmpty(rv.ExclusionViolations),
		ExclusionPasses:     orEmpty(rv.ExclusionPasses),
		Explanation:         rv.Explanation,
		Reasoning:           rv.Reasoning,
	}
	if v.Explanation == "" {
		v.Explanation = "No explanation provided."
	}

	// An eligible verdict can never carry exclusion violations. The backend
	// contradiction is resolved toward safety: downgrade, keep the lists,
	// and say so in the explanation instead of discarding the result.
	if v.Eligible && len(v.ExclusionViolations) > 0 {
		v.Eligible = false
		v.Explanation += " Note: verdict adjusted to ineligible because exclusion criteria are violated."
	}

	// An ineligible verdict never lands in the strong-match band.
	if !v.Eligible && v.Score >= strongMatchThreshold {
		v.Score = ineligibleScoreCap
	}

	return v, nil
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// extractJSON returns the first balanced top-level JSON object in text,
// after stripping any markdown code fence around it.
func extractJSON(text string) (string, bool) {
	if i := strings.Index(text, "```json"); i != -1 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j != -1 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i != -1 {
		text = text[i+len("```"):]
		if j := strings.Index(text, "```"); j != -1 {
			text = text[:j]
		}
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
