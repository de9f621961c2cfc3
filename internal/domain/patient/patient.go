// Package patient defines the PatientRecord domain entity and its validation.
package patient

import (
	"fmt"
	"math"

	"github.com/trialscout/trialscout/internal/domain"
)

// Gender is the patient's gender.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// SmokingStatus is the patient's smoking history.
type SmokingStatus string

const (
	SmokingNever   SmokingStatus = "never"
	SmokingFormer  SmokingStatus = "former"
	SmokingCurrent SmokingStatus = "current"
)

// Condition is a diagnosed medical condition.
type Condition struct {
	Name      string `json:"name"`
	ICD10Code string `json:"icd10_code,omitempty"`
	OnsetDate string `json:"onset_date,omitempty"`
}

// Medication is a medication the patient currently takes.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// LabResult is a numeric laboratory observation.
type LabResult struct {
	TestName string  `json:"test_name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	Date     string  `json:"date,omitempty"`
}

// Record is the complete patient profile used for trial matching.
// It is immutable once constructed for a match request and is never persisted.
type Record struct {
	Age           int           `json:"age"`
	Gender        Gender        `json:"gender"`
	Conditions    []Condition   `json:"conditions,omitempty"`
	Medications   []Medication  `json:"medications,omitempty"`
	LabResults    []LabResult   `json:"lab_results,omitempty"`
	SmokingStatus SmokingStatus `json:"smoking_status,omitempty"`
	// Pregnant is only meaningful when Gender is female; nil means unknown.
	Pregnant *bool `json:"pregnant,omitempty"`
}

// Validate checks the record before any matching work is performed.
// All failures wrap domain.ErrValidation.
func (r *Record) Validate() error {
	if r.Age < 0 || r.Age > 130 {
		return fmt.Errorf("age must be between 0 and 130, got %d: %w", r.Age, domain.ErrValidation)
	}

	switch r.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return fmt.Errorf("gender must be male, female or other, got %q: %w", r.Gender, domain.ErrValidation)
	}

	switch r.SmokingStatus {
	case "", SmokingNever, SmokingFormer, SmokingCurrent:
	default:
		return fmt.Errorf("smoking_status must be never, former or current, got %q: %w", r.SmokingStatus, domain.ErrValidation)
	}

	for i, c := range r.Conditions {
		if c.Name == "" {
			return fmt.Errorf("conditions[%d]: name is required: %w", i, domain.ErrValidation)
		}
	}

	for i, m := range r.Medications {
		if m.Name == "" {
			return fmt.Errorf("medications[%d]: name is required: %w", i, domain.ErrValidation)
		}
	}

	for i, l := range r.LabResults {
		if l.TestName == "" {
			return fmt.Errorf("lab_results[%d]: test_name is required: %w", i, domain.ErrValidation)
		}
		if l.Unit == "" {
			return fmt.Errorf("lab_results[%d]: unit is required: %w", i, domain.ErrValidation)
		}
		if math.IsNaN(l.Value) || math.IsInf(l.Value, 0) {
			return fmt.Errorf("lab_results[%d]: value must be a finite number: %w", i, domain.ErrValidation)
		}
	}

	return nil
}
