// Package alerting implements threshold comparison and alert de-duplication.
package alerting

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/synheart/synheart-monitor/internal/models"
)

// Direction of a threshold crossing
type Direction string

const (
	Low  Direction = "Low"
	High Direction = "High"
)

// LeadOffMessage is the technical alarm raised while the ECG lead is disconnected
const LeadOffMessage = "ECG Lead Off"

// Rule is one (metric, severity, direction) combination
type Rule struct {
	Metric    string
	Severity  models.Severity
	Direction Direction
}

func f(v float64) *float64 { return &v }

// DefaultThresholds returns the global limits. SpO2 has no high limits.
func DefaultThresholds() map[string]models.ThresholdOverride {
	return map[string]models.ThresholdOverride{
		models.MetricHeartRate: {
			LowWarning:   f(50),
			LowCritical:  f(40),
			HighWarning:  f(120),
			HighCritical: f(150),
		},
		models.MetricSpO2: {
			LowWarning:  f(92),
			LowCritical: f(88),
		},
	}
}

// Rules lists the combinations evaluated for a metric
func Rules(metric string) []Rule {
	return []Rule{
		{Metric: metric, Severity: models.SeverityWarning, Direction: Low},
		{Metric: metric, Severity: models.SeverityCritical, Direction: Low},
		{Metric: metric, Severity: models.SeverityWarning, Direction: High},
		{Metric: metric, Severity: models.SeverityCritical, Direction: High},
	}
}

// Threshold resolves the limit for a rule. The override wins when set.
func Threshold(rule Rule, global, override models.ThresholdOverride) (float64, bool) {
	if v := pick(rule, override); v != nil {
		return *v, true
	}
	if v := pick(rule, global); v != nil {
		return *v, true
	}
	return 0, false
}

func pick(rule Rule, t models.ThresholdOverride) *float64 {
	switch {
	case rule.Direction == Low && rule.Severity == models.SeverityWarning:
		return t.LowWarning
	case rule.Direction == Low && rule.Severity == models.SeverityCritical:
		return t.LowCritical
	case rule.Direction == High && rule.Severity == models.SeverityWarning:
		return t.HighWarning
	case rule.Direction == High && rule.Severity == models.SeverityCritical:
		return t.HighCritical
	}
	return nil
}

// Evaluate reports whether value crosses the rule's threshold.
// A rule with no limit configured never triggers.
func Evaluate(rule Rule, value float64, global, override models.ThresholdOverride) bool {
	limit, ok := Threshold(rule, global, override)
	if !ok {
		return false
	}
	if rule.Direction == Low {
		return value < limit
	}
	return value > limit
}

// Message formats the alert text, e.g. "Heart Rate Low: 50"
func Message(metric string, dir Direction, value float64) string {
	return fmt.Sprintf("%s %s: %s", metric, dir, strconv.FormatFloat(value, 'f', -1, 64))
}

// Contains reports whether alerts already holds message at severity
func Contains(alerts []models.Alert, message string, severity models.Severity) bool {
	for _, a := range alerts {
		if a.Message == message && a.Severity == severity {
			return true
		}
	}
	return false
}

// Engine raises alerts into an alert collection
type Engine struct {
	newID func() string
}

// NewEngine creates an engine issuing uuid alert ids
func NewEngine() *Engine {
	return &Engine{newID: func() string { return uuid.New().String() }}
}

// Raise appends an alert unless one with the same message and severity is active.
// It returns the new collection and the alert that was added, if any.
func (e *Engine) Raise(alerts []models.Alert, metric, message string, severity models.Severity, now time.Time) ([]models.Alert, *models.Alert) {
	if Contains(alerts, message, severity) {
		return alerts, nil
	}
	a := models.Alert{
		ID:        e.newID(),
		Message:   message,
		Severity:  severity,
		Metric:    metric,
		CreatedAt: now,
	}
	return append(alerts, a), &a
}

// Check evaluates every rule for metric and raises the triggered ones
func (e *Engine) Check(alerts []models.Alert, metric string, value float64, global, override models.ThresholdOverride, now time.Time) ([]models.Alert, []models.Alert) {
	var raised []models.Alert
	for _, rule := range Rules(metric) {
		if !Evaluate(rule, value, global, override) {
			continue
		}
		var added *models.Alert
		alerts, added = e.Raise(alerts, metric, Message(metric, rule.Direction, value), rule.Severity, now)
		if added != nil {
			raised = append(raised, *added)
		}
	}
	return alerts, raised
}

// Remove drops every alert with message, returning the remaining collection
func Remove(alerts []models.Alert, message string) []models.Alert {
	out := alerts[:0:0]
	for _, a := range alerts {
		if a.Message != message {
			out = append(out, a)
		}
	}
	return out
}
