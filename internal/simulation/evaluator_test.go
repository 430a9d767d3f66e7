package simulation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/synheart/synheart-monitor/internal/alerting"
	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

func newEvaluator(seed int64) *Evaluator {
	return NewEvaluator(rand.New(rand.NewSource(seed)), alerting.NewEngine())
}

func ptr(v float64) *float64 { return &v }

func TestHeartRateConverges(t *testing.T) {
	def := mustLookup(t, rhythm.VentricularTachycardia)
	s := New(mustLookup(t, rhythm.NormalSinus), rand.New(rand.NewSource(1)), t0)
	s.Metrics.HeartRate = 72
	s.TargetHeartRate = 180
	e := newEvaluator(1)

	res := e.Evaluate(s, def, nil, t0.Add(time.Second))
	if got := res.State.Metrics.HeartRate; got != 74 {
		t.Errorf("heart rate = %d, want 74", got)
	}

	s = res.State
	s.TargetHeartRate = 75
	res = e.Evaluate(s, def, nil, t0.Add(2*time.Second))
	if got := res.State.Metrics.HeartRate; got != 75 {
		t.Errorf("heart rate = %d, want 75 (within one step)", got)
	}
}

func TestLethalRhythmZeroesVitals(t *testing.T) {
	s := New(mustLookup(t, rhythm.NormalSinus), rand.New(rand.NewSource(2)), t0)
	e := newEvaluator(2)

	res := e.Evaluate(s, mustLookup(t, rhythm.VentricularFibrillation), nil, t0.Add(time.Second))
	m := res.State.Metrics
	if m.Systolic != 0 || m.Diastolic != 0 || m.SpO2 != 0 || m.RespiratoryRate != 0 {
		t.Fatalf("lethal rhythm left vitals %+v", m)
	}

	res = e.Evaluate(res.State, mustLookup(t, rhythm.NormalSinus), nil, t0.Add(2*time.Second))
	m = res.State.Metrics
	if m.Systolic == 0 || m.SpO2 == 0 || m.RespiratoryRate == 0 {
		t.Errorf("vitals did not recover after rhythm restored: %+v", m)
	}
}

func TestHeartRateAlertNotDuplicated(t *testing.T) {
	def := mustLookup(t, rhythm.SinusBradycardia)
	s := New(def, rand.New(rand.NewSource(3)), t0)
	s.Metrics.HeartRate = 50
	s.TargetHeartRate = 50
	overrides := map[string]models.ThresholdOverride{
		models.MetricHeartRate: {LowCritical: ptr(55)},
	}
	e := newEvaluator(3)

	res := e.Evaluate(s, def, overrides, t0.Add(time.Second))
	if len(res.Raised) != 1 {
		t.Fatalf("expected 1 raised alert, got %d", len(res.Raised))
	}
	res = e.Evaluate(res.State, def, overrides, t0.Add(2*time.Second))
	if len(res.Raised) != 0 {
		t.Errorf("alert raised again on second tick")
	}

	alerts := res.State.Alerts
	if len(alerts) != 1 {
		t.Fatalf("expected 1 active alert, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].Message != "Heart Rate Low: 50" || alerts[0].Severity != models.SeverityCritical {
		t.Errorf("unexpected alert %+v", alerts[0])
	}
}

func TestThresholdAlertsPersistAfterRecovery(t *testing.T) {
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rand.New(rand.NewSource(4)), t0)
	s.Metrics.SpO2 = 90
	e := newEvaluator(4)

	res := e.Evaluate(s, def, nil, t0.Add(time.Second))
	if len(res.State.Alerts) != 1 {
		t.Fatalf("expected SpO2 warning, got %+v", res.State.Alerts)
	}

	s = res.State
	s.Metrics.SpO2 = 98
	res = e.Evaluate(s, def, nil, t0.Add(2*time.Second))
	if len(res.State.Alerts) != 1 {
		t.Errorf("threshold alert should persist after value recovers, got %d", len(res.State.Alerts))
	}
}

func TestLeadOffSuppressesHeartRateAlerts(t *testing.T) {
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rand.New(rand.NewSource(5)), t0)
	s.IsLeadOff = true
	s.Metrics.HeartRate = 0
	s.TargetHeartRate = 80
	e := newEvaluator(5)

	res := e.Evaluate(s, def, nil, t0.Add(time.Second))
	if res.State.Metrics.HeartRate != 0 {
		t.Errorf("heart rate converged under lead-off: %d", res.State.Metrics.HeartRate)
	}
	for _, a := range res.State.Alerts {
		if a.Metric == models.MetricHeartRate {
			t.Errorf("heart rate alert raised under lead-off: %+v", a)
		}
	}
}

func TestVitalsLogCadenceAndCap(t *testing.T) {
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rand.New(rand.NewSource(6)), t0)
	e := newEvaluator(6)

	res := e.Evaluate(s, def, nil, t0)
	if !res.Logged || len(res.State.LoggedVitals) != 1 {
		t.Fatal("empty log should be appended on first tick")
	}
	res = e.Evaluate(res.State, def, nil, t0.Add(30*time.Second))
	if res.Logged || len(res.State.LoggedVitals) != 1 {
		t.Error("log appended before the auto-log interval")
	}
	res = e.Evaluate(res.State, def, nil, t0.Add(60*time.Second))
	if !res.Logged || len(res.State.LoggedVitals) != 2 {
		t.Error("log not appended after the auto-log interval")
	}

	s = res.State
	s.LoggedVitals = nil
	for i := 0; i < VitalsLogCap; i++ {
		s.LoggedVitals = append(s.LoggedVitals, models.VitalsEntry{Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}
	oldest := s.LoggedVitals[0].Timestamp
	res = e.Evaluate(s, def, nil, t0.Add(VitalsLogCap*time.Minute))
	log := res.State.LoggedVitals
	if len(log) != VitalsLogCap {
		t.Fatalf("log length = %d, want %d", len(log), VitalsLogCap)
	}
	if log[0].Timestamp.Equal(oldest) {
		t.Error("oldest entry was not evicted")
	}
	if !log[len(log)-1].Timestamp.Equal(t0.Add(VitalsLogCap * time.Minute)) {
		t.Error("newest entry missing")
	}
}

func TestAnalysisTriggeredOnce(t *testing.T) {
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rand.New(rand.NewSource(7)), t0)
	e := newEvaluator(7)

	res := e.Evaluate(s, def, nil, t0)
	if !res.AnalysisDue || !res.State.AI.IsLoading {
		t.Fatal("first tick should launch analysis and mark it loading")
	}
	res = e.Evaluate(res.State, def, nil, t0.Add(time.Second))
	if res.AnalysisDue {
		t.Error("analysis launched while one is in flight")
	}

	s = res.State
	s.AI.IsLoading = false
	s.AI.LastAnalyzed = t0
	res = e.Evaluate(s, def, nil, t0.Add(5*time.Minute))
	if res.AnalysisDue {
		t.Error("analysis launched before the interval elapsed")
	}
	res = e.Evaluate(res.State, def, nil, t0.Add(11*time.Minute))
	if !res.AnalysisDue {
		t.Error("analysis not launched after the interval elapsed")
	}
}

func TestDriftGatedAndClamped(t *testing.T) {
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rand.New(rand.NewSource(8)), t0)
	s.Metrics.RespiratoryRate = MaxRespiratoryRate
	e := newEvaluator(8)

	now := t0
	for i := 0; i < 200; i++ {
		now = now.Add(RRDriftInterval)
		res := e.Evaluate(s, def, nil, now)
		s = res.State
		rr := s.Metrics.RespiratoryRate
		if rr < MinRespiratoryRate || rr > MaxRespiratoryRate {
			t.Fatalf("respiratory rate %d outside clamp", rr)
		}
		if !s.LastRRUpdate.Equal(now) {
			t.Fatalf("RR update timestamp not advanced")
		}
	}

	before := s.Metrics
	res := e.Evaluate(s, def, nil, now.Add(time.Second))
	if res.State.Metrics.RespiratoryRate != before.RespiratoryRate {
		t.Error("respiratory rate drifted before its interval")
	}
}
