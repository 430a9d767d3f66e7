package models

import "time"

// Metric names used in alert messages and threshold overrides
const (
	MetricHeartRate = "Heart Rate"
	MetricSpO2      = "SpO2"
	MetricLeadOff   = "ECG Lead"
)

// Severity of an alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metrics is the current set of displayed vital signs
type Metrics struct {
	HeartRate       int     `json:"heartRate"`
	Systolic        int     `json:"systolic"`
	Diastolic       int     `json:"diastolic"`
	SpO2            int     `json:"spo2"`
	Temperature     float64 `json:"temperature"`
	RespiratoryRate int     `json:"respiratoryRate"`
}

// Sample is one waveform point
type Sample struct {
	Index int64   `json:"i"`
	Value float64 `json:"v"`
}

// Alert is created by the alert engine and never mutated afterwards
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Metric    string    `json:"metric"`
	CreatedAt time.Time `json:"createdAt"`
}

// VitalsEntry is one timestamped row of the vitals log
type VitalsEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Metrics   Metrics   `json:"metrics"`
}

// FeedbackLabel is the clinician's verdict on an alarm
type FeedbackLabel string

const (
	FeedbackTruePositive  FeedbackLabel = "true_positive"
	FeedbackFalsePositive FeedbackLabel = "false_positive"
)

// FeedbackRecord captures an alert as it was when feedback was given
type FeedbackRecord struct {
	ID        string        `json:"id"`
	PatientID string        `json:"patientId"`
	Alert     Alert         `json:"alert"`
	Label     FeedbackLabel `json:"label"`
	Timestamp time.Time     `json:"timestamp"`
}
