package models

import "time"

// FrameSchema identifies the frame envelope version on the wire
const FrameSchema = "monitor.frame.v1"

// Frame is the per-patient telemetry envelope streamed to rendering clients
type Frame struct {
	SchemaVersion string    `json:"schema_version"`
	FrameID       string    `json:"frame_id"`
	Timestamp     string    `json:"ts"`
	PatientID     string    `json:"patient_id"`
	RhythmID      string    `json:"rhythm_id"`
	Metrics       Metrics   `json:"metrics"`
	ECG           []Sample  `json:"ecg"`
	Pleth         []Sample  `json:"pleth"`
	Respiration   []Sample  `json:"resp"`
	Alerts        []Alert   `json:"alerts"`
	Unacked       int       `json:"unacknowledged"`
	LeadOff       bool      `json:"lead_off"`
	Risk          *AIState  `json:"risk,omitempty"`
	Meta          FrameMeta `json:"meta"`
}

// FrameMeta carries stream bookkeeping
type FrameMeta struct {
	Sequence int64 `json:"sequence"`
}

// NewFrame creates a Frame stamped with the current time
func NewFrame(frameID, patientID string, sequence int64) Frame {
	return Frame{
		SchemaVersion: FrameSchema,
		FrameID:       frameID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		PatientID:     patientID,
		Meta:          FrameMeta{Sequence: sequence},
	}
}
