package scenario

import (
	"fmt"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

// Scenario is a ward: a patient roster plus timed phases that script rhythm changes
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Duration    string        `yaml:"duration"` // e.g., "8m", "unlimited"
	Patients    []WardPatient `yaml:"patients"`
	Phases      []Phase       `yaml:"phases"`
}

// WardPatient is one roster entry. Key names the bed within the scenario.
type WardPatient struct {
	Key                string `yaml:"key"`
	models.PatientData `yaml:",inline"`
	Rhythm             string                              `yaml:"rhythm,omitempty"`
	Pacer              *models.PacerSettings               `yaml:"pacer,omitempty"`
	Thresholds         map[string]models.ThresholdOverride `yaml:"thresholds,omitempty"`
	NoiseSignatures    []string                            `yaml:"noise_signatures,omitempty"`
}

// Phase is a time-bounded stage; Rhythms maps patient keys to the rhythm entered at its start
type Phase struct {
	Name     string            `yaml:"name"`
	Duration string            `yaml:"duration"`
	Rhythms  map[string]string `yaml:"rhythms,omitempty"`
	LeadOff  []string          `yaml:"lead_off,omitempty"`
}

// ParseDuration parses duration strings like "8m", "30s", "unlimited"
func ParseDuration(s string) (time.Duration, bool) {
	if s == "unlimited" || s == "" {
		return 0, true // 0 means unlimited
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, false
}

// Validate checks roster keys, rhythm ids and durations
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if _, unlimited := ParseDuration(s.Duration); !unlimited {
		if _, err := time.ParseDuration(s.Duration); err != nil {
			return fmt.Errorf("scenario %s: invalid duration %q", s.Name, s.Duration)
		}
	}

	keys := make(map[string]bool, len(s.Patients))
	for i, p := range s.Patients {
		if p.Key == "" {
			return fmt.Errorf("scenario %s: patients[%d] has no key", s.Name, i)
		}
		if keys[p.Key] {
			return fmt.Errorf("scenario %s: duplicate patient key %q", s.Name, p.Key)
		}
		keys[p.Key] = true
		if p.Rhythm != "" && !rhythm.Valid(p.Rhythm) {
			return fmt.Errorf("scenario %s: patient %s: %w: %s", s.Name, p.Key, rhythm.ErrUnknownRhythm, p.Rhythm)
		}
	}

	for _, ph := range s.Phases {
		if _, unlimited := ParseDuration(ph.Duration); !unlimited {
			if _, err := time.ParseDuration(ph.Duration); err != nil {
				return fmt.Errorf("scenario %s: phase %s: invalid duration %q", s.Name, ph.Name, ph.Duration)
			}
		}
		for key, id := range ph.Rhythms {
			if !keys[key] {
				return fmt.Errorf("scenario %s: phase %s references unknown patient %q", s.Name, ph.Name, key)
			}
			if !rhythm.Valid(id) {
				return fmt.Errorf("scenario %s: phase %s: %w: %s", s.Name, ph.Name, rhythm.ErrUnknownRhythm, id)
			}
		}
		for _, key := range ph.LeadOff {
			if !keys[key] {
				return fmt.Errorf("scenario %s: phase %s references unknown patient %q", s.Name, ph.Name, key)
			}
		}
	}
	return nil
}

// Roster builds registry records for the ward. ids maps each patient key to its new id.
func (s *Scenario) Roster(newID func() string) ([]models.Patient, map[string]string) {
	patients := make([]models.Patient, 0, len(s.Patients))
	ids := make(map[string]string, len(s.Patients))
	for _, wp := range s.Patients {
		p := models.Patient{
			ID:         newID(),
			Name:       wp.Name,
			Age:        wp.Age,
			Gender:     wp.Gender,
			Room:       wp.Room,
			Diagnosis:  wp.Diagnosis,
			Notes:      wp.Notes,
			CodeStatus: wp.CodeStatus,
			RhythmID:   rhythm.Default,
			Pacer:      models.PacerSettings{Mode: models.PacerOff, Rate: 60},
			Source:     models.SourceManual,
			DeviceID:   wp.DeviceID,
		}
		if wp.Rhythm != "" {
			p.RhythmID = wp.Rhythm
		}
		if wp.Pacer != nil {
			p.Pacer = *wp.Pacer
		}
		if len(wp.Thresholds) > 0 {
			p.Thresholds = make(map[string]models.ThresholdOverride, len(wp.Thresholds))
			for metric, o := range wp.Thresholds {
				p.Thresholds[metric] = o
			}
		}
		if len(wp.NoiseSignatures) > 0 {
			p.NoiseSignatures = append([]string(nil), wp.NoiseSignatures...)
		}
		patients = append(patients, p)
		ids[wp.Key] = p.ID
	}
	return patients, ids
}

// phaseIndex returns the index of the phase active at elapsed, or -1 without phases
func (s *Scenario) phaseIndex(elapsed time.Duration) int {
	if len(s.Phases) == 0 {
		return -1
	}

	var currentTime time.Duration
	for i := range s.Phases {
		phaseDuration, unlimited := ParseDuration(s.Phases[i].Duration)
		if unlimited {
			return i
		}

		if elapsed < currentTime+phaseDuration {
			return i
		}
		currentTime += phaseDuration
	}

	// Stay in the last phase once the script has run out
	return len(s.Phases) - 1
}

func (s *Scenario) getCurrentPhase(elapsed time.Duration) *Phase {
	if i := s.phaseIndex(elapsed); i >= 0 {
		return &s.Phases[i]
	}
	return nil
}

// RhythmsAt returns the rhythm each patient key should be on at elapsed,
// folding every phase assignment up to and including the current phase
func (s *Scenario) RhythmsAt(elapsed time.Duration) map[string]string {
	out := make(map[string]string, len(s.Patients))
	for _, p := range s.Patients {
		out[p.Key] = rhythm.Default
		if p.Rhythm != "" {
			out[p.Key] = p.Rhythm
		}
	}
	for i := 0; i <= s.phaseIndex(elapsed); i++ {
		for key, id := range s.Phases[i].Rhythms {
			out[key] = id
		}
	}
	return out
}
