package monitor

import (
	"fmt"

	"github.com/synheart/synheart-monitor/internal/alerting"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
	"github.com/synheart/synheart-monitor/internal/simulation"
)

// DefaultPacerRate is the demand rate programmed on new patients
const DefaultPacerRate = 60

// Operations referencing an unknown patient id are no-ops. They report
// whether the patient was found so transports can map it to a status code.

// AddPatient registers a patient on the default rhythm and selects it
func (m *Monitor) AddPatient(data models.PatientData, source models.Source) models.Patient {
	def, _ := rhythm.Lookup(rhythm.Default)

	m.mu.Lock()
	p := models.Patient{
		ID:         m.newID(),
		Name:       data.Name,
		Age:        data.Age,
		Gender:     data.Gender,
		Room:       data.Room,
		Diagnosis:  data.Diagnosis,
		Notes:      data.Notes,
		CodeStatus: data.CodeStatus,
		RhythmID:   def.ID,
		Pacer:      models.PacerSettings{Mode: models.PacerOff, Rate: DefaultPacerRate},
		Source:     source,
		DeviceID:   data.DeviceID,
	}
	m.patients = append(m.patients, p)
	m.states[p.ID] = simulation.New(def, m.rng, m.now())
	m.selected = p.ID
	m.mu.Unlock()

	m.log.Info().Str("patient_id", p.ID).Str("source", string(source)).Msg("patient added")
	m.markDirty()
	return p.Clone()
}

// DeletePatient removes the patient and its state. Selection moves to the
// patient now at the same position, else the last patient, else none.
func (m *Monitor) DeletePatient(id string) bool {
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.patients = append(m.patients[:idx:idx], m.patients[idx+1:]...)
	delete(m.states, id)

	if m.selected == id {
		switch {
		case idx < len(m.patients):
			m.selected = m.patients[idx].ID
		case len(m.patients) > 0:
			m.selected = m.patients[len(m.patients)-1].ID
		default:
			m.selected = ""
		}
	}
	m.mu.Unlock()

	m.log.Info().Str("patient_id", id).Msg("patient deleted")
	m.markDirty()
	return true
}

// SelectPatient changes the selected patient
func (m *Monitor) SelectPatient(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(id) < 0 {
		return false
	}
	m.selected = id
	return true
}

// UpdatePatientDetails merges a partial demographics update
func (m *Monitor) UpdatePatientDetails(id string, update models.PatientUpdate) bool {
	return m.updatePatient(id, func(p *models.Patient) {
		update.Apply(p)
	})
}

// UpdateNoiseSignatures replaces the patient's noise tags
func (m *Monitor) UpdateNoiseSignatures(id string, tags []string) bool {
	return m.updatePatient(id, func(p *models.Patient) {
		p.NoiseSignatures = append([]string(nil), tags...)
	})
}

// UpdateThresholds replaces the patient's personalized alert limits
func (m *Monitor) UpdateThresholds(id string, overrides map[string]models.ThresholdOverride) bool {
	return m.updatePatient(id, func(p *models.Patient) {
		p.Thresholds = make(map[string]models.ThresholdOverride, len(overrides))
		for metric, o := range overrides {
			p.Thresholds[metric] = o
		}
	})
}

// UpdatePacerSettings merges a partial pacer update. Turning demand pacing on
// re-arms a stalled beat countdown so the pacer can capture.
func (m *Monitor) UpdatePacerSettings(id string, update models.PacerUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(id)
	if idx < 0 {
		return false
	}
	p := &m.patients[idx]
	if update.Mode != nil {
		p.Pacer.Mode = *update.Mode
	}
	if update.Rate != nil {
		p.Pacer.Rate = *update.Rate
	}
	if st, ok := m.states[id]; ok && p.Pacer.Enabled() {
		next := st.Clone()
		next.RearmBeat()
		m.states[id] = next
	}
	m.markDirty()
	return true
}

// SetRhythm switches the patient's rhythm and refreshes the target rate
// immediately. A countdown longer than the new rhythm's interval is shortened.
func (m *Monitor) SetRhythm(id, rhythmID string) (bool, error) {
	def, err := rhythm.Lookup(rhythmID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return false, nil
	}
	m.patients[idx].RhythmID = def.ID

	if st, ok := m.states[id]; ok {
		next := st.Clone()
		target := def.HeartRate(m.rng)
		next.TargetHeartRate = target

		interval := simulation.IntervalFor(target)
		switch {
		case interval == simulation.Never:
			next.NextBeatIn = simulation.Never
			next.Pattern = append([]float64(nil), def.Pattern...)
			next.Cursor = 0
		case next.NextBeatIn == simulation.Never || next.NextBeatIn > interval:
			next.NextBeatIn = interval
		}
		if m.patients[idx].Pacer.Enabled() {
			next.RearmBeat()
		}
		m.states[id] = next
	}
	m.mu.Unlock()

	m.log.Info().Str("patient_id", id).Str("rhythm", def.ID).Msg("rhythm changed")
	m.markDirty()
	return true, nil
}

// AcknowledgeAlerts marks active alerts as accepted. A nil severity matches all.
func (m *Monitor) AcknowledgeAlerts(id string, severity *models.Severity) bool {
	return m.updateState(id, func(s *simulation.State) {
		for _, a := range s.Alerts {
			if severity == nil || a.Severity == *severity {
				s.Acknowledged[a.ID] = true
			}
		}
	})
}

// ProvideAlarmFeedback records a verdict for every active, unacknowledged
// alert of the given severity and acknowledges it. Feedback on the lead-off
// alert reconnects the lead.
func (m *Monitor) ProvideAlarmFeedback(id string, label models.FeedbackLabel, severity models.Severity) bool {
	now := m.now()
	return m.updateState(id, func(s *simulation.State) {
		reconnect := false
		for _, a := range s.Alerts {
			if a.Severity != severity || s.Acknowledged[a.ID] {
				continue
			}
			s.AlarmFeedbackLog = append(s.AlarmFeedbackLog, models.FeedbackRecord{
				ID:        m.newID(),
				PatientID: id,
				Alert:     a,
				Label:     label,
				Timestamp: now,
			})
			s.Acknowledged[a.ID] = true
			if a.Message == alerting.LeadOffMessage {
				reconnect = true
			}
		}
		if reconnect {
			s.ReconnectLead()
			s.Alerts = alerting.Remove(s.Alerts, alerting.LeadOffMessage)
		}
	})
}

// ToggleEcgLeadOff flips the lead-off flag, raising or clearing its alert
func (m *Monitor) ToggleEcgLeadOff(id string) bool {
	var raised *models.Alert
	ok := m.updateState(id, func(s *simulation.State) {
		if s.IsLeadOff {
			s.ReconnectLead()
			s.Alerts = alerting.Remove(s.Alerts, alerting.LeadOffMessage)
			return
		}
		s.IsLeadOff = true
		s.Alerts, raised = m.alerts.Raise(s.Alerts, models.MetricLeadOff, alerting.LeadOffMessage, models.SeverityCritical, m.now())
	})
	if raised != nil {
		m.publish([]raisedAlert{{patientID: id, alert: *raised}})
	}
	return ok
}

// updatePatient applies fn to the registry entry under the lock
func (m *Monitor) updatePatient(id string, fn func(*models.Patient)) bool {
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	fn(&m.patients[idx])
	m.mu.Unlock()
	m.markDirty()
	return true
}

// updateState applies fn to a clone of the patient's state and swaps it in
func (m *Monitor) updateState(id string, fn func(*simulation.State)) bool {
	m.mu.Lock()
	st, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	next := st.Clone()
	fn(next)
	m.states[id] = next
	m.mu.Unlock()
	m.markDirty()
	return true
}

func (m *Monitor) indexOf(id string) int {
	for i, p := range m.patients {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Load replaces the registry with a persisted snapshot. The first patient is selected.
func (m *Monitor) Load(state models.PersistedState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid persisted state: %w", err)
	}

	patients := make([]models.Patient, 0, len(state.Patients))
	states := make(map[string]*simulation.State, len(state.Patients))

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, p := range state.Patients {
		def, err := rhythm.Lookup(p.RhythmID)
		if err != nil {
			return fmt.Errorf("patient %s: %w", p.ID, err)
		}
		st := simulation.New(def, m.rng, now)
		if data, ok := state.PerPatientData[p.ID]; ok {
			st.Restore(data)
		}
		patients = append(patients, p.Clone())
		states[p.ID] = st
	}

	m.patients = patients
	m.states = states
	m.selected = ""
	if len(patients) > 0 {
		m.selected = patients[0].ID
	}
	return nil
}
