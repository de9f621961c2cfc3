// Package service contains the matching pipeline: prompt construction,
// verdict parsing and the orchestrator that fans evaluation out across
// candidate trials.
package service

import (
	"fmt"
	"strings"

	"github.com/trialscout/trialscout/internal/domain/patient"
	"github.com/trialscout/trialscout/internal/domain/trial"
)

// buildPrompt renders the patient profile and one trial's eligibility text
// into the instruction the reasoning backend answers. The output is
// deterministic for a given input: every populated patient field appears,
// absent optional fields are omitted entirely so the backend does not read
// "unknown" as "negative."
func buildPrompt(p patient.Record, t trial.Trial) string {
	var b strings.Builder

	b.WriteString("You are a clinical trial matching expert. Analyze whether a patient is eligible for a clinical trial.\n\n")
	writePatientProfile(&b, p)

	fmt.Fprintf(&b, "\nClinical Trial: %s\n", t.Title)
	fmt.Fprintf(&b, "NCT ID: %s\n", t.NCTID)

	b.WriteString("\nEligibility Criteria:\n")
	if t.EligibilityCriteria != "" {
		b.WriteString(t.EligibilityCriteria)
	} else {
		b.WriteString("Not provided.")
	}
	b.WriteString("\n")

	b.WriteString(`
Your task:
1. Carefully parse the inclusion and exclusion criteria
2. Compare each criterion against the patient's data
3. Determine if the patient meets ALL inclusion criteria
4. Determine if the patient violates ANY exclusion criteria
5. Calculate an overall match score (0.0 to 1.0)
6. Provide a clear explanation

Respond in JSON format with this exact structure (no additional text):
{
  "is_eligible": true,
  "match_score": 0.85,
  "inclusion_matches": ["criterion 1 met", "criterion 2 met"],
  "inclusion_mismatches": ["criterion X not met"],
  "exclusion_violations": ["exclusion Y violated"],
  "exclusion_passes": ["exclusion A passed", "exclusion B passed"],
  "explanation": "Brief summary for patient",
  "reasoning": "Detailed reasoning"
}

Scoring guidance:
- 1.0 = Perfect match, all inclusion met, no exclusions violated
- 0.8-0.9 = Strong match, minor uncertainties
- 0.6-0.7 = Moderate match, some criteria unclear
- 0.4-0.5 = Weak match, significant mismatches
- 0.0-0.3 = Poor match or exclusion violated

If eligibility criteria are missing or unclear, make reasonable assumptions based on the trial title and condition.
IMPORTANT: Return ONLY the JSON object, no other text.`)

	return b.String()
}

func writePatientProfile(b *strings.Builder, p patient.Record) {
	b.WriteString("Patient Profile:\n")
	fmt.Fprintf(b, "- Age: %d years\n", p.Age)
	fmt.Fprintf(b, "- Gender: %s\n", p.Gender)

	if len(p.Conditions) > 0 {
		b.WriteString("\nMedical Conditions:\n")
		for _, c := range p.Conditions {
			fmt.Fprintf(b, "  - %s", c.Name)
			if c.ICD10Code != "" {
				fmt.Fprintf(b, " (ICD-10: %s)", c.ICD10Code)
			}
			if c.OnsetDate != "" {
				fmt.Fprintf(b, " since %s", c.OnsetDate)
			}
			b.WriteString("\n")
		}
	}

	if len(p.Medications) > 0 {
		b.WriteString("\nCurrent Medications:\n")
		for _, m := range p.Medications {
			fmt.Fprintf(b, "  - %s", m.Name)
			if m.Dosage != "" {
				fmt.Fprintf(b, " %s", m.Dosage)
			}
			if m.Frequency != "" {
				fmt.Fprintf(b, ", %s", m.Frequency)
			}
			b.WriteString("\n")
		}
	}

	if len(p.LabResults) > 0 {
		b.WriteString("\nRecent Lab Results:\n")
		for _, l := range p.LabResults {
			fmt.Fprintf(b, "  - %s: %g %s", l.TestName, l.Value, l.Unit)
			if l.Date != "" {
				fmt.Fprintf(b, " (%s)", l.Date)
			}
			b.WriteString("\n")
		}
	}

	if p.SmokingStatus != "" {
		fmt.Fprintf(b, "\nSmoking Status: %s\n", p.SmokingStatus)
	}

	if p.Pregnant != nil {
		if *p.Pregnant {
			b.WriteString("Pregnancy Status: Pregnant\n")
		} else {
			b.WriteString("Pregnancy Status: Not pregnant\n")
		}
	}
}
