package registry

import (
	"errors"

	"github.com/trialscout/trialscout/internal/domain/trial"
)

// maxLocations caps how many sites are kept per trial; the prompt only
// needs a sample, not the full site list.
const maxLocations = 5

// searchResponse is the paginated envelope of the studies endpoint.
type searchResponse struct {
	Studies       []study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
}

// study mirrors the subset of the registry's protocolSection that
// TrialScout consumes.
type study struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		DescriptionModule struct {
			BriefSummary string `json:"briefSummary"`
		} `json:"descriptionModule"`
		EligibilityModule struct {
			EligibilityCriteria string `json:"eligibilityCriteria"`
			MinimumAge          string `json:"minimumAge"`
			MaximumAge          string `json:"maximumAge"`
			Sex                 string `json:"sex"`
		} `json:"eligibilityModule"`
		StatusModule struct {
			OverallStatus string `json:"overallStatus"`
		} `json:"statusModule"`
		DesignModule struct {
			Phases         []string `json:"phases"`
			EnrollmentInfo struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		ContactsLocationsModule struct {
			Locations []struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"locations"`
		} `json:"contactsLocationsModule"`
	} `json:"protocolSection"`
}

// normalizeStudy converts a raw study record into a Trial. Absent optional
// fields stay zero-valued; they are never defaulted to sentinel strings.
func normalizeStudy(s study) (trial.Trial, error) {
	p := s.ProtocolSection

	if p.IdentificationModule.NCTID == "" {
		return trial.Trial{}, errors.New("study record has no nctId")
	}

	t := trial.Trial{
		NCTID:               p.IdentificationModule.NCTID,
		Title:               p.IdentificationModule.BriefTitle,
		BriefSummary:        p.DescriptionModule.BriefSummary,
		EligibilityCriteria: p.EligibilityModule.EligibilityCriteria,
		MinimumAge:          p.EligibilityModule.MinimumAge,
		MaximumAge:          p.EligibilityModule.MaximumAge,
		Sex:                 p.EligibilityModule.Sex,
		Status:              p.StatusModule.OverallStatus,
		Enrollment:          p.DesignModule.EnrollmentInfo.Count,
		Conditions:          p.ConditionsModule.Conditions,
	}

	if len(p.DesignModule.Phases) > 0 {
		t.Phase = p.DesignModule.Phases[0]
	}

	for _, loc := range p.ContactsLocationsModule.Locations {
		if loc.City == "" || loc.State == "" {
			continue
		}
		t.Locations = append(t.Locations, loc.City+", "+loc.State)
		if len(t.Locations) == maxLocations {
			break
		}
	}

	for _, iv := range p.ArmsInterventionsModule.Interventions {
		if iv.Name != "" {
			t.Interventions = append(t.Interventions, iv.Name)
		}
	}

	return t, nil
}
