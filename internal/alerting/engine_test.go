package alerting

import (
	"testing"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

func TestEvaluate(t *testing.T) {
	global := DefaultThresholds()[models.MetricHeartRate]
	override := models.ThresholdOverride{LowCritical: f(55)}

	tests := []struct {
		name     string
		rule     Rule
		value    float64
		override models.ThresholdOverride
		want     bool
	}{
		{"low warning below", Rule{models.MetricHeartRate, models.SeverityWarning, Low}, 49, models.ThresholdOverride{}, true},
		{"low warning at limit", Rule{models.MetricHeartRate, models.SeverityWarning, Low}, 50, models.ThresholdOverride{}, false},
		{"low critical global", Rule{models.MetricHeartRate, models.SeverityCritical, Low}, 50, models.ThresholdOverride{}, false},
		{"low critical override", Rule{models.MetricHeartRate, models.SeverityCritical, Low}, 50, override, true},
		{"high warning above", Rule{models.MetricHeartRate, models.SeverityWarning, High}, 121, models.ThresholdOverride{}, true},
		{"high critical at limit", Rule{models.MetricHeartRate, models.SeverityCritical, High}, 150, models.ThresholdOverride{}, false},
		{"high critical above", Rule{models.MetricHeartRate, models.SeverityCritical, High}, 151, models.ThresholdOverride{}, true},
	}

	for _, test := range tests {
		if got := Evaluate(test.rule, test.value, global, test.override); got != test.want {
			t.Errorf("%s: Evaluate = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestEvaluate_NoLimitNeverTriggers(t *testing.T) {
	global := DefaultThresholds()[models.MetricSpO2]
	rule := Rule{models.MetricSpO2, models.SeverityCritical, High}
	if Evaluate(rule, 100, global, models.ThresholdOverride{}) {
		t.Error("SpO2 has no high limit and should never trigger")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(models.MetricHeartRate, Low, 50); got != "Heart Rate Low: 50" {
		t.Errorf("unexpected message %q", got)
	}
	if got := Message(models.MetricSpO2, Low, 87.5); got != "SpO2 Low: 87.5" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCheck_DeduplicatesAcrossTicks(t *testing.T) {
	e := NewEngine()
	global := DefaultThresholds()[models.MetricHeartRate]
	override := models.ThresholdOverride{LowCritical: f(55)}
	now := time.Now()

	var alerts []models.Alert
	var raised []models.Alert
	alerts, raised = e.Check(alerts, models.MetricHeartRate, 50, global, override, now)
	if len(raised) != 1 {
		t.Fatalf("expected 1 raised alert, got %d", len(raised))
	}
	for i := 0; i < 5; i++ {
		alerts, raised = e.Check(alerts, models.MetricHeartRate, 50, global, override, now.Add(time.Duration(i+1)*time.Second))
		if len(raised) != 0 {
			t.Fatalf("tick %d: expected no new alerts, got %d", i, len(raised))
		}
	}

	if len(alerts) != 1 {
		t.Fatalf("expected exactly one active alert, got %d", len(alerts))
	}
	if alerts[0].Message != "Heart Rate Low: 50" || alerts[0].Severity != models.SeverityCritical {
		t.Errorf("unexpected alert %+v", alerts[0])
	}
}

func TestCheck_WarningAndCriticalCoexist(t *testing.T) {
	e := NewEngine()
	global := DefaultThresholds()[models.MetricSpO2]

	alerts, raised := e.Check(nil, models.MetricSpO2, 85, global, models.ThresholdOverride{}, time.Now())
	if len(raised) != 2 || len(alerts) != 2 {
		t.Fatalf("expected warning and critical alerts, got %d raised / %d active", len(raised), len(alerts))
	}
	if alerts[0].Severity == alerts[1].Severity {
		t.Error("expected one warning and one critical alert")
	}
}

func TestRemove(t *testing.T) {
	alerts := []models.Alert{
		{ID: "1", Message: LeadOffMessage},
		{ID: "2", Message: "SpO2 Low: 90"},
	}
	out := Remove(alerts, LeadOffMessage)
	if len(out) != 1 || out[0].ID != "2" {
		t.Errorf("unexpected alerts after remove: %+v", out)
	}
	if len(alerts) != 2 || alerts[0].ID != "1" {
		t.Error("Remove must not modify its input")
	}
}
