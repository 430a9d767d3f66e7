package models

import "time"

// RiskLevel is the categorical output of risk analysis
type RiskLevel string

const (
	RiskStable           RiskLevel = "Stable"
	RiskLow              RiskLevel = "Low"
	RiskModerate         RiskLevel = "Moderate"
	RiskHigh             RiskLevel = "High"
	RiskCritical         RiskLevel = "Critical"
	RiskInsufficientData RiskLevel = "InsufficientData"
	RiskError            RiskLevel = "Error"
)

// RiskAssessment is what the analysis capability returns
type RiskAssessment struct {
	RiskScore  int       `json:"riskScore"`  // 0-100
	RiskLevel  RiskLevel `json:"riskLevel"`
	Reasoning  string    `json:"reasoning"`
	Confidence int       `json:"confidence"` // 0-100
}

// AIState caches the last analysis for a patient
type AIState struct {
	Assessment   *RiskAssessment `json:"assessment,omitempty"`
	LastAnalyzed time.Time       `json:"lastAnalyzed"`
	IsLoading    bool            `json:"isLoading"`
	Error        string          `json:"error,omitempty"`
}

// AnalysisInput is the simulation data handed to the analysis capability
type AnalysisInput struct {
	RhythmID     string        `json:"rhythmId"`
	IsLethal     bool          `json:"isLethal"`
	Metrics      Metrics       `json:"metrics"`
	LoggedVitals []VitalsEntry `json:"loggedVitals"`
	ActiveAlerts []Alert       `json:"activeAlerts"`
	Unacked      int           `json:"unacknowledged"`
	IsLeadOff    bool          `json:"isLeadOff"`
}
