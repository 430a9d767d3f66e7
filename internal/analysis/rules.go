// Package analysis implements the risk-scoring capability invoked by the monitor.
package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

// MinSamples is the vitals history a confident assessment wants.
// Below half of it the analyzer reports InsufficientData.
const MinSamples = 10

// Default simulated latency
const (
	DefaultMinDelay = 1500 * time.Millisecond
	DefaultMaxDelay = 3 * time.Second
)

// RuleConfig configures the rule-based analyzer
type RuleConfig struct {
	Seed     int64
	MinDelay time.Duration
	MaxDelay time.Duration
}

// RuleAnalyzer scores risk with fixed clinical heuristics after a simulated delay
type RuleAnalyzer struct {
	mu       sync.Mutex
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
}

// NewRuleAnalyzer creates a rule-based analyzer
func NewRuleAnalyzer(cfg RuleConfig) *RuleAnalyzer {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &RuleAnalyzer{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
	}
}

// Analyze waits out the simulated latency, then scores the input
func (a *RuleAnalyzer) Analyze(ctx context.Context, patient models.Patient, input models.AnalysisInput) (models.RiskAssessment, error) {
	if d := a.delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.RiskAssessment{}, fmt.Errorf("analysis for %s cancelled: %w", patient.ID, ctx.Err())
		case <-timer.C:
		}
	}
	return Score(input), nil
}

func (a *RuleAnalyzer) delay() time.Duration {
	span := a.maxDelay - a.minDelay
	if span <= 0 {
		return a.minDelay
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.minDelay + time.Duration(a.rng.Int63n(int64(span)))
}

// Score applies the heuristics synchronously
func Score(input models.AnalysisInput) models.RiskAssessment {
	if n := len(input.LoggedVitals); n < MinSamples/2 {
		return models.RiskAssessment{
			RiskLevel:  models.RiskInsufficientData,
			Reasoning:  fmt.Sprintf("Only %d vitals entries logged; at least %d are needed.", n, MinSamples/2),
			Confidence: 0,
		}
	}

	var (
		score   int
		reasons []string
	)
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	m := input.Metrics
	if input.IsLethal {
		add(90, fmt.Sprintf("Lethal rhythm %s detected.", input.RhythmID))
	}
	if !input.IsLeadOff {
		switch {
		case m.HeartRate > 150:
			add(25, fmt.Sprintf("Marked tachycardia at %d bpm.", m.HeartRate))
		case m.HeartRate > 100:
			add(10, fmt.Sprintf("Tachycardia at %d bpm.", m.HeartRate))
		case m.HeartRate > 0 && m.HeartRate < 40:
			add(25, fmt.Sprintf("Marked bradycardia at %d bpm.", m.HeartRate))
		case m.HeartRate > 0 && m.HeartRate < 60:
			add(10, fmt.Sprintf("Bradycardia at %d bpm.", m.HeartRate))
		}
	}
	switch {
	case m.SpO2 > 0 && m.SpO2 < 88:
		add(25, fmt.Sprintf("Severe desaturation, SpO2 %d%%.", m.SpO2))
	case m.SpO2 > 0 && m.SpO2 < 92:
		add(10, fmt.Sprintf("Low SpO2 %d%%.", m.SpO2))
	}
	if m.Systolic > 0 && m.Systolic < 90 {
		add(15, fmt.Sprintf("Hypotension %d/%d.", m.Systolic, m.Diastolic))
	} else if m.Systolic > 180 {
		add(10, fmt.Sprintf("Hypertension %d/%d.", m.Systolic, m.Diastolic))
	}
	if m.RespiratoryRate > 0 && (m.RespiratoryRate < 10 || m.RespiratoryRate > 28) {
		add(10, fmt.Sprintf("Abnormal respiratory rate %d/min.", m.RespiratoryRate))
	}
	if m.Temperature >= 38.5 {
		add(5, fmt.Sprintf("Febrile at %.1f C.", m.Temperature))
	}
	if drift := heartRateTrend(input.LoggedVitals); drift >= 20 || drift <= -20 {
		add(10, fmt.Sprintf("Heart rate changed %+d bpm across the logged window.", drift))
	}
	if input.Unacked > 0 {
		add(5*min(input.Unacked, 4), fmt.Sprintf("%d unacknowledged alarm(s).", input.Unacked))
	}

	if score > 100 {
		score = 100
	}
	confidence := 50 + 5*len(input.LoggedVitals)
	if confidence > 95 {
		confidence = 95
	}
	if input.IsLeadOff {
		confidence /= 2
		reasons = append(reasons, "ECG lead is disconnected; heart rate excluded.")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Vital signs within expected ranges.")
	}

	return models.RiskAssessment{
		RiskScore:  score,
		RiskLevel:  LevelFor(score),
		Reasoning:  strings.Join(reasons, " "),
		Confidence: confidence,
	}
}

// LevelFor maps a 0-100 score to its category
func LevelFor(score int) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 40:
		return models.RiskModerate
	case score >= 20:
		return models.RiskLow
	default:
		return models.RiskStable
	}
}

// heartRateTrend is the newest minus the oldest logged heart rate
func heartRateTrend(log []models.VitalsEntry) int {
	if len(log) < 2 {
		return 0
	}
	return log[len(log)-1].Metrics.HeartRate - log[0].Metrics.HeartRate
}
