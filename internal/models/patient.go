package models

// Source records how a patient record entered the registry
type Source string

const (
	SourceManual Source = "manual"
	SourceDevice Source = "device"
)

// PacerMode is the programmed pacemaker mode
type PacerMode string

const (
	PacerOff    PacerMode = "off"
	PacerDemand PacerMode = "demand"
)

// PacerSettings holds the pacemaker configuration for a patient
type PacerSettings struct {
	Mode PacerMode `json:"mode" yaml:"mode"`
	Rate int       `json:"rate" yaml:"rate"` // demand rate in bpm
}

// Enabled reports whether the pacer can capture beats
func (p PacerSettings) Enabled() bool {
	return p.Mode == PacerDemand && p.Rate > 0
}

// PacerUpdate is a partial pacer update; nil fields are left unchanged
type PacerUpdate struct {
	Mode *PacerMode `json:"mode,omitempty"`
	Rate *int       `json:"rate,omitempty"`
}

// ThresholdOverride holds optional per-patient limits for one metric.
// A nil field falls back to the global default.
type ThresholdOverride struct {
	LowWarning   *float64 `json:"lowWarning,omitempty" yaml:"low_warning,omitempty"`
	LowCritical  *float64 `json:"lowCritical,omitempty" yaml:"low_critical,omitempty"`
	HighWarning  *float64 `json:"highWarning,omitempty" yaml:"high_warning,omitempty"`
	HighCritical *float64 `json:"highCritical,omitempty" yaml:"high_critical,omitempty"`
}

// Patient is a registry entry. Simulation state refers to it by ID only.
type Patient struct {
	ID              string                       `json:"id"`
	Name            string                       `json:"name"`
	Age             int                          `json:"age"`
	Gender          string                       `json:"gender"`
	Room            string                       `json:"room"`
	Diagnosis       string                       `json:"diagnosis"`
	Notes           string                       `json:"notes"`
	CodeStatus      string                       `json:"codeStatus"`
	RhythmID        string                       `json:"rhythmId"`
	Pacer           PacerSettings                `json:"pacer"`
	Thresholds      map[string]ThresholdOverride `json:"thresholds,omitempty"`
	NoiseSignatures []string                     `json:"noiseSignatures,omitempty"`
	Source          Source                       `json:"source"`
	DeviceID        string                       `json:"deviceId,omitempty"`
}

// Clone returns a deep copy so callers never share maps or slices with the registry
func (p Patient) Clone() Patient {
	out := p
	if p.Thresholds != nil {
		out.Thresholds = make(map[string]ThresholdOverride, len(p.Thresholds))
		for k, v := range p.Thresholds {
			out.Thresholds[k] = v
		}
	}
	if p.NoiseSignatures != nil {
		out.NoiseSignatures = append([]string(nil), p.NoiseSignatures...)
	}
	return out
}

// PatientData is the demographic payload accepted by addPatient
type PatientData struct {
	Name       string `json:"name" yaml:"name"`
	Age        int    `json:"age" yaml:"age"`
	Gender     string `json:"gender" yaml:"gender"`
	Room       string `json:"room" yaml:"room"`
	Diagnosis  string `json:"diagnosis" yaml:"diagnosis"`
	Notes      string `json:"notes" yaml:"notes"`
	CodeStatus string `json:"codeStatus" yaml:"code_status"`
	DeviceID   string `json:"deviceId,omitempty" yaml:"device_id,omitempty"`
}

// PatientUpdate is a partial demographics update; nil fields are left unchanged
type PatientUpdate struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Gender     *string `json:"gender,omitempty"`
	Room       *string `json:"room,omitempty"`
	Diagnosis  *string `json:"diagnosis,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	CodeStatus *string `json:"codeStatus,omitempty"`
}

// Apply merges the update into p
func (u PatientUpdate) Apply(p *Patient) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Room != nil {
		p.Room = *u.Room
	}
	if u.Diagnosis != nil {
		p.Diagnosis = *u.Diagnosis
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if u.CodeStatus != nil {
		p.CodeStatus = *u.CodeStatus
	}
}
