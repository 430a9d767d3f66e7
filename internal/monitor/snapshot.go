package monitor

import (
	"context"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/simulation"
)

// Snapshot is a read-only copy of one patient's simulation state
type Snapshot struct {
	PatientID        string                  `json:"patientId"`
	Metrics          models.Metrics          `json:"metrics"`
	TargetHeartRate  int                     `json:"targetHeartRate"`
	ECG              []models.Sample         `json:"ecg"`
	Pleth            []models.Sample         `json:"pleth"`
	Respiration      []models.Sample         `json:"respiration"`
	SampleTime       int64                   `json:"sampleTime"`
	LastBeatPaced    bool                    `json:"lastBeatPaced"`
	Alerts           []models.Alert          `json:"alerts"`
	Acknowledged     []string                `json:"acknowledgedAlertIds"`
	Unacknowledged   []models.Alert          `json:"unacknowledgedAlerts"`
	LoggedVitals     []models.VitalsEntry    `json:"loggedVitals"`
	AlarmFeedbackLog []models.FeedbackRecord `json:"alarmFeedbackLog"`
	AI               models.AIState          `json:"aiState"`
	IsLeadOff        bool                    `json:"isLeadOff"`
}

func snapshotOf(id string, st *simulation.State) Snapshot {
	c := st.Clone()
	ack := make([]string, 0, len(c.Acknowledged))
	for _, a := range c.Alerts {
		if c.Acknowledged[a.ID] {
			ack = append(ack, a.ID)
		}
	}
	return Snapshot{
		PatientID:        id,
		Metrics:          c.Metrics,
		TargetHeartRate:  c.TargetHeartRate,
		ECG:              c.ECG.Samples(),
		Pleth:            c.Pleth.Samples(),
		Respiration:      c.Resp.Samples(),
		SampleTime:       c.SampleTime,
		LastBeatPaced:    c.LastBeatPaced,
		Alerts:           c.Alerts,
		Acknowledged:     ack,
		Unacknowledged:   c.Unacknowledged(),
		LoggedVitals:     c.LoggedVitals,
		AlarmFeedbackLog: c.AlarmFeedbackLog,
		AI:               c.AI,
		IsLeadOff:        c.IsLeadOff,
	}
}

// State returns a snapshot of the patient's simulation state
func (m *Monitor) State(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(id, st), true
}

// Patients returns the registry in display order
func (m *Monitor) Patients() []models.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Patient, len(m.patients))
	for i, p := range m.patients {
		out[i] = p.Clone()
	}
	return out
}

// Patient returns one registry entry
func (m *Monitor) Patient(id string) (models.Patient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.indexOf(id); idx >= 0 {
		return m.patients[idx].Clone(), true
	}
	return models.Patient{}, false
}

// PatientByDevice finds the patient created from a device connection
func (m *Monitor) PatientByDevice(deviceID string) (models.Patient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.DeviceID != "" && p.DeviceID == deviceID {
			return p.Clone(), true
		}
	}
	return models.Patient{}, false
}

// SelectedPatientID is empty when no patient is selected
func (m *Monitor) SelectedPatientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Export returns the persistable shape of the registry and per-patient logs
func (m *Monitor) Export() models.PersistedState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := models.PersistedState{
		Patients:       make([]models.Patient, 0, len(m.patients)),
		PerPatientData: make(map[string]models.PersistedPatientData, len(m.states)),
	}
	for _, p := range m.patients {
		out.Patients = append(out.Patients, p.Clone())
		if st, ok := m.states[p.ID]; ok {
			out.PerPatientData[p.ID] = st.Persisted()
		}
	}
	return out
}

// Frame builds a stream frame holding the newest window samples of each waveform
func (m *Monitor) Frame(id string, window int, sequence int64) (models.Frame, bool) {
	f, _, ok := m.buildFrame(id, sequence, func(r simulation.Ring) []models.Sample { return r.Last(window) })
	return f, ok
}

// FrameSince builds a frame carrying the samples with index >= since and
// returns the index the next frame should start from
func (m *Monitor) FrameSince(id string, since, sequence int64) (models.Frame, int64, bool) {
	return m.buildFrame(id, sequence, func(r simulation.Ring) []models.Sample { return r.Since(since) })
}

func (m *Monitor) buildFrame(id string, sequence int64, samples func(simulation.Ring) []models.Sample) (models.Frame, int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	st, ok := m.states[id]
	if idx < 0 || !ok {
		return models.Frame{}, 0, false
	}

	f := models.NewFrame(m.newID(), id, sequence)
	f.Timestamp = m.now().UTC().Format(time.RFC3339Nano)
	f.RhythmID = m.patients[idx].RhythmID
	f.Metrics = st.Metrics
	f.ECG = samples(st.ECG)
	f.Pleth = samples(st.Pleth)
	f.Respiration = samples(st.Resp)
	f.Alerts = append([]models.Alert(nil), st.Alerts...)
	f.Unacked = len(st.Unacknowledged())
	f.LeadOff = st.IsLeadOff
	ai := st.Clone().AI
	f.Risk = &ai
	return f, st.SampleTime, true
}

// StreamFrames emits one frame per patient on every ticker tick until ctx is done.
// Each frame carries the samples produced since that patient's previous frame;
// a patient's first frame carries one interval's worth.
func (m *Monitor) StreamFrames(ctx context.Context, ticker *time.Ticker, interval time.Duration, output chan<- models.Frame) error {
	window := int64(interval / simulation.TickInterval)
	if window < 1 {
		window = 1
	}
	var sequence int64
	cursors := make(map[string]int64)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-ticker.C:
			patients := m.Patients()
			live := make(map[string]int64, len(patients))
			for _, p := range patients {
				since, seen := cursors[p.ID]
				if !seen {
					since = -1
				}
				sequence++
				frame, next, ok := m.FrameSince(p.ID, since, sequence)
				if !ok {
					continue
				}
				if !seen {
					frame = trimFrame(frame, window)
				}
				live[p.ID] = next
				select {
				case output <- frame:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			cursors = live
		}
	}
}

// trimFrame keeps the newest n samples of each waveform
func trimFrame(f models.Frame, n int64) models.Frame {
	trim := func(s []models.Sample) []models.Sample {
		if int64(len(s)) > n {
			return s[int64(len(s))-n:]
		}
		return s
	}
	f.ECG = trim(f.ECG)
	f.Pleth = trim(f.Pleth)
	f.Respiration = trim(f.Respiration)
	return f
}
