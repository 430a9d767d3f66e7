// Package simulation advances per-patient telemetry state.
//
// Both loops are value transforms: they clone the previous State, advance the
// clone and return it. Callers swap the result in; nothing shares buffers with
// a State that has been handed out.
package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

// Timing and sizing constants
const (
	TickInterval     = 25 * time.Millisecond
	SamplesPerSecond = 40
	WindowSeconds    = 10
	WindowSize       = WindowSeconds * SamplesPerSecond

	VitalsInterval   = time.Second
	AutoLogInterval  = 60 * time.Second
	AnalysisInterval = 10 * time.Minute
	VitalsLogCap     = 200
	ConvergenceStep  = 2

	BPDriftInterval   = 5 * time.Minute
	TempDriftInterval = 10 * time.Minute
	RRDriftInterval   = 2 * time.Minute

	MinRespiratoryRate = 8
	MaxRespiratoryRate = 35

	// Never marks a countdown that will not fire
	Never = -1
)

// Waveform rendering constants
const (
	PlethBaseline = 0.1
	MinPlethScale = 0.5
	RespAmplitude = 0.5
)

// Baseline vitals for a freshly created patient
var BaselineMetrics = models.Metrics{
	Systolic:        120,
	Diastolic:       80,
	SpO2:            98,
	Temperature:     37.0,
	RespiratoryRate: 16,
}

// State is the mutable simulation state of one patient
type State struct {
	Metrics models.Metrics

	ECG        Ring
	Pleth      Ring
	Resp       Ring
	SampleTime int64 // index of the next sample to push

	// ventricular beat timing
	NextBeatIn      int
	Pattern         []float64
	Cursor          int
	LastBeatAt      time.Time
	LastBeatPaced   bool
	TargetHeartRate int

	// independent atrial track for AV dissociation
	NextPWaveIn int
	PWave       []float64
	PWaveCursor int
	LastPWaveAt time.Time

	PulseDue    bool
	Pulse       []float64
	PulseCursor int

	RespPhase float64

	LastBPUpdate   time.Time
	LastTempUpdate time.Time
	LastRRUpdate   time.Time

	Alerts           []models.Alert
	Acknowledged     map[string]bool
	LoggedVitals     []models.VitalsEntry
	AlarmFeedbackLog []models.FeedbackRecord
	AI               models.AIState
	IsLeadOff        bool
}

// IntervalFor converts a rate in bpm to a countdown in samples
func IntervalFor(rate int) int {
	if rate <= 0 {
		return Never
	}
	return int(math.Round(60.0 / float64(rate) * SamplesPerSecond))
}

// New seeds a state from the rhythm's rate generator
func New(def rhythm.Definition, rng *rand.Rand, now time.Time) *State {
	target := def.HeartRate(rng)
	metrics := BaselineMetrics
	metrics.HeartRate = target

	s := &State{
		Metrics:         metrics,
		ECG:             NewRing(WindowSize, 0, 0),
		Pleth:           NewRing(WindowSize, 0, PlethBaseline),
		Resp:            NewRing(WindowSize, 0, 0),
		SampleTime:      WindowSize,
		NextBeatIn:      IntervalFor(target),
		TargetHeartRate: target,
		NextPWaveIn:     IntervalFor(def.AtrialRate),
		LastBPUpdate:    now,
		LastTempUpdate:  now,
		LastRRUpdate:    now,
		Acknowledged:    make(map[string]bool),
	}
	return s
}

// ReconnectLead clears lead-off. The zero heart rate shown while the lead was
// off is an artifact, so the displayed rate resumes at the current target.
func (s *State) ReconnectLead() {
	s.IsLeadOff = false
	s.Metrics.HeartRate = s.TargetHeartRate
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	c := *s
	c.ECG = s.ECG.Clone()
	c.Pleth = s.Pleth.Clone()
	c.Resp = s.Resp.Clone()
	c.Pattern = cloneFloats(s.Pattern)
	c.PWave = cloneFloats(s.PWave)
	c.Pulse = cloneFloats(s.Pulse)
	c.Alerts = append([]models.Alert(nil), s.Alerts...)
	c.Acknowledged = make(map[string]bool, len(s.Acknowledged))
	for id := range s.Acknowledged {
		c.Acknowledged[id] = true
	}
	c.LoggedVitals = append([]models.VitalsEntry(nil), s.LoggedVitals...)
	c.AlarmFeedbackLog = append([]models.FeedbackRecord(nil), s.AlarmFeedbackLog...)
	if s.AI.Assessment != nil {
		a := *s.AI.Assessment
		c.AI.Assessment = &a
	}
	return &c
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

// Unacknowledged returns active alerts the user has not accepted
func (s *State) Unacknowledged() []models.Alert {
	var out []models.Alert
	for _, a := range s.Alerts {
		if !s.Acknowledged[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// RearmBeat makes a stalled countdown fire on the next tick
func (s *State) RearmBeat() {
	if s.NextBeatIn == Never {
		s.NextBeatIn = 0
	}
}

// Persisted extracts the slice of state that survives restarts
func (s *State) Persisted() models.PersistedPatientData {
	c := s.Clone()
	return models.PersistedPatientData{
		LoggedVitals:     c.LoggedVitals,
		AlarmFeedbackLog: c.AlarmFeedbackLog,
		AIState:          c.AI,
	}
}

// Restore merges persisted data. In-flight and error markers are not carried across sessions.
func (s *State) Restore(data models.PersistedPatientData) {
	s.LoggedVitals = append([]models.VitalsEntry(nil), data.LoggedVitals...)
	if len(s.LoggedVitals) > VitalsLogCap {
		s.LoggedVitals = s.LoggedVitals[len(s.LoggedVitals)-VitalsLogCap:]
	}
	s.AlarmFeedbackLog = append([]models.FeedbackRecord(nil), data.AlarmFeedbackLog...)
	s.AI = data.AIState
	s.AI.IsLoading = false
	s.AI.Error = ""
}
