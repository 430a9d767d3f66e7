package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
)

func history(n, heartRate int) []models.VitalsEntry {
	log := make([]models.VitalsEntry, n)
	for i := range log {
		log[i] = models.VitalsEntry{
			Timestamp: time.Unix(int64(i*60), 0),
			Metrics:   models.Metrics{HeartRate: heartRate},
		}
	}
	return log
}

func stableMetrics() models.Metrics {
	return models.Metrics{HeartRate: 75, Systolic: 120, Diastolic: 80, SpO2: 98, Temperature: 37, RespiratoryRate: 16}
}

func TestScoreInsufficientData(t *testing.T) {
	got := Score(models.AnalysisInput{Metrics: stableMetrics(), LoggedVitals: history(4, 75)})
	if got.RiskLevel != models.RiskInsufficientData {
		t.Errorf("level = %s, want InsufficientData", got.RiskLevel)
	}

	got = Score(models.AnalysisInput{Metrics: stableMetrics(), LoggedVitals: history(5, 75)})
	if got.RiskLevel == models.RiskInsufficientData {
		t.Error("five entries should be enough")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		input models.AnalysisInput
		want  models.RiskLevel
	}{
		{
			name:  "stable",
			input: models.AnalysisInput{Metrics: stableMetrics(), LoggedVitals: history(10, 75)},
			want:  models.RiskStable,
		},
		{
			name: "lethal rhythm",
			input: models.AnalysisInput{
				RhythmID:     "VENTRICULAR_FIBRILLATION",
				IsLethal:     true,
				LoggedVitals: history(10, 75),
			},
			want: models.RiskCritical,
		},
		{
			name: "tachycardic and desaturating",
			input: models.AnalysisInput{
				Metrics:      models.Metrics{HeartRate: 160, Systolic: 120, Diastolic: 80, SpO2: 86, RespiratoryRate: 16},
				LoggedVitals: history(10, 160),
			},
			want: models.RiskModerate,
		},
		{
			name: "multiple derangements",
			input: models.AnalysisInput{
				Metrics:      models.Metrics{HeartRate: 35, Systolic: 80, Diastolic: 50, SpO2: 98, RespiratoryRate: 30},
				LoggedVitals: history(10, 35),
				Unacked:      2,
			},
			want: models.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.input)
			if got.RiskLevel != tt.want {
				t.Errorf("level = %s (score %d), want %s: %s", got.RiskLevel, got.RiskScore, tt.want, got.Reasoning)
			}
			if got.RiskScore < 0 || got.RiskScore > 100 {
				t.Errorf("score %d out of range", got.RiskScore)
			}
			if got.Confidence < 0 || got.Confidence > 100 {
				t.Errorf("confidence %d out of range", got.Confidence)
			}
		})
	}
}

func TestScoreLeadOffIgnoresHeartRate(t *testing.T) {
	m := stableMetrics()
	m.HeartRate = 0
	got := Score(models.AnalysisInput{Metrics: m, LoggedVitals: history(10, 0), IsLeadOff: true})
	if got.RiskScore != 0 {
		t.Errorf("score = %d, want 0", got.RiskScore)
	}
	if !strings.Contains(got.Reasoning, "lead") {
		t.Errorf("reasoning does not mention the lead: %q", got.Reasoning)
	}
	if got.Confidence >= 95 {
		t.Errorf("confidence %d not reduced under lead-off", got.Confidence)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.RiskLevel
	}{
		{0, models.RiskStable},
		{19, models.RiskStable},
		{20, models.RiskLow},
		{40, models.RiskModerate},
		{60, models.RiskHigh},
		{79, models.RiskHigh},
		{80, models.RiskCritical},
		{100, models.RiskCritical},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestRuleAnalyzerDelay(t *testing.T) {
	a := NewRuleAnalyzer(RuleConfig{Seed: 1, MinDelay: 20 * time.Millisecond, MaxDelay: 40 * time.Millisecond})
	input := models.AnalysisInput{Metrics: stableMetrics(), LoggedVitals: history(10, 75)}

	start := time.Now()
	got, err := a.Analyze(context.Background(), models.Patient{ID: "p1"}, input)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("answered after %v, before the minimum delay", elapsed)
	}
	if got.RiskLevel != models.RiskStable {
		t.Errorf("level = %s", got.RiskLevel)
	}
}

func TestRuleAnalyzerCancelled(t *testing.T) {
	a := NewRuleAnalyzer(RuleConfig{MinDelay: time.Minute, MaxDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, models.Patient{ID: "p1"}, models.AnalysisInput{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWasmAnalyzerMissingFile(t *testing.T) {
	_, err := NewWasmAnalyzer(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWasmAnalyzerRejectsInvalidModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wasm")
	if err := os.WriteFile(path, []byte("not wasm"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWasmAnalyzer(context.Background(), path); err == nil || !strings.Contains(err.Error(), "compile") {
		t.Errorf("expected compile error, got %v", err)
	}
}

func TestWasmAnalyzerRequiresExports(t *testing.T) {
	// magic number and version only: a valid module with no exports
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_, err := newWasmAnalyzer(context.Background(), empty)
	if err == nil || !strings.Contains(err.Error(), exportAlloc) {
		t.Errorf("expected missing export error, got %v", err)
	}
}
