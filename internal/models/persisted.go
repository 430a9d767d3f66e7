package models

import "fmt"

// PersistedPatientData is the per-patient slice of simulation state that survives restarts
type PersistedPatientData struct {
	LoggedVitals     []VitalsEntry    `json:"loggedVitals"`
	AlarmFeedbackLog []FeedbackRecord `json:"alarmFeedbackLog"`
	AIState          AIState          `json:"aiState"`
}

// PersistedState is the shape handed to and from the persistence collaborator
type PersistedState struct {
	Patients       []Patient                       `json:"patients"`
	PerPatientData map[string]PersistedPatientData `json:"perPatientData"`
}

// Validate checks that the stored snapshot can be handed to the monitor
func (s *PersistedState) Validate() error {
	seen := make(map[string]bool, len(s.Patients))
	for i, p := range s.Patients {
		if p.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("patients[%d].id", i), Message: "is required"}
		}
		if seen[p.ID] {
			return &ValidationError{Field: fmt.Sprintf("patients[%d].id", i), Message: "is duplicated"}
		}
		seen[p.ID] = true
		if p.RhythmID == "" {
			return &ValidationError{Field: fmt.Sprintf("patients[%d].rhythmId", i), Message: "is required"}
		}
	}
	for id := range s.PerPatientData {
		if !seen[id] {
			return &ValidationError{Field: "perPatientData", Message: "references unknown patient " + id}
		}
	}
	return nil
}

// ValidationError reports which field of a payload is invalid
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
