package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/synheart/synheart-monitor/internal/alerting"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

// VitalsResult is the outcome of one 1 s evaluation
type VitalsResult struct {
	State       *State
	Raised      []models.Alert
	Logged      bool
	AnalysisDue bool
}

// Evaluator evolves vitals, raises alerts and decides when to analyze
type Evaluator struct {
	rng    *rand.Rand
	alerts *alerting.Engine
	global map[string]models.ThresholdOverride
}

// NewEvaluator creates an evaluator using the global default thresholds
func NewEvaluator(rng *rand.Rand, engine *alerting.Engine) *Evaluator {
	return &Evaluator{
		rng:    rng,
		alerts: engine,
		global: alerting.DefaultThresholds(),
	}
}

// Evaluate runs one vitals tick; prev is not modified.
func (e *Evaluator) Evaluate(prev *State, def rhythm.Definition, overrides map[string]models.ThresholdOverride, now time.Time) VitalsResult {
	s := prev.Clone()
	res := VitalsResult{State: s}

	if !s.IsLeadOff {
		s.Metrics.HeartRate = converge(s.Metrics.HeartRate, s.TargetHeartRate, ConvergenceStep)
	}

	if !def.IsLethal {
		recoverFromArrest(&s.Metrics)
	}
	e.drift(s, now)

	if def.IsLethal {
		s.Metrics.Systolic = 0
		s.Metrics.Diastolic = 0
		s.Metrics.SpO2 = 0
		s.Metrics.RespiratoryRate = 0
	}

	var raised []models.Alert
	if !s.IsLeadOff {
		s.Alerts, raised = e.alerts.Check(s.Alerts, models.MetricHeartRate, float64(s.Metrics.HeartRate),
			e.global[models.MetricHeartRate], overrides[models.MetricHeartRate], now)
		res.Raised = append(res.Raised, raised...)
	}
	s.Alerts, raised = e.alerts.Check(s.Alerts, models.MetricSpO2, float64(s.Metrics.SpO2),
		e.global[models.MetricSpO2], overrides[models.MetricSpO2], now)
	res.Raised = append(res.Raised, raised...)

	res.Logged = logVitals(s, now)

	if !s.AI.IsLoading && (s.AI.LastAnalyzed.IsZero() || now.Sub(s.AI.LastAnalyzed) > AnalysisInterval) {
		s.AI.IsLoading = true
		res.AnalysisDue = true
	}
	return res
}

func converge(current, target, step int) int {
	switch d := target - current; {
	case d > step:
		return current + step
	case d < -step:
		return current - step
	default:
		return target
	}
}

// recoverFromArrest restores the values a lethal rhythm zeroed
func recoverFromArrest(m *models.Metrics) {
	if m.Systolic == 0 {
		m.Systolic = BaselineMetrics.Systolic
		m.Diastolic = BaselineMetrics.Diastolic
	}
	if m.SpO2 == 0 {
		m.SpO2 = 97
	}
	if m.RespiratoryRate == 0 {
		m.RespiratoryRate = BaselineMetrics.RespiratoryRate
	}
}

func (e *Evaluator) drift(s *State, now time.Time) {
	m := &s.Metrics
	if now.Sub(s.LastBPUpdate) >= BPDriftInterval {
		m.Systolic = clampInt(m.Systolic+e.rng.Intn(7)-3, 70, 200)
		m.Diastolic = clampInt(m.Diastolic+e.rng.Intn(5)-2, 40, 120)
		s.LastBPUpdate = now
	}
	if now.Sub(s.LastTempUpdate) >= TempDriftInterval {
		t := m.Temperature + e.rng.Float64()*0.4 - 0.2
		m.Temperature = math.Max(35, math.Min(41, math.Round(t*10)/10))
		s.LastTempUpdate = now
	}
	if now.Sub(s.LastRRUpdate) >= RRDriftInterval {
		m.RespiratoryRate = clampInt(m.RespiratoryRate+e.rng.Intn(5)-2, MinRespiratoryRate, MaxRespiratoryRate)
		s.LastRRUpdate = now
	}
}

// logVitals appends a snapshot when the log is empty or stale, evicting the oldest past the cap
func logVitals(s *State, now time.Time) bool {
	if n := len(s.LoggedVitals); n > 0 && now.Sub(s.LoggedVitals[n-1].Timestamp) < AutoLogInterval {
		return false
	}
	s.LoggedVitals = append(s.LoggedVitals, models.VitalsEntry{Timestamp: now, Metrics: s.Metrics})
	if over := len(s.LoggedVitals) - VitalsLogCap; over > 0 {
		s.LoggedVitals = append([]models.VitalsEntry(nil), s.LoggedVitals[over:]...)
	}
	return true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
