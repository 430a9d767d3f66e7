package simulation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func mustLookup(t *testing.T, id string) rhythm.Definition {
	t.Helper()
	def, err := rhythm.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", id, err)
	}
	return def
}

func tickAt(i int) time.Time {
	return t0.Add(time.Duration(i) * TickInterval)
}

func TestRingsKeepFixedLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)
	adv := NewAdvancer(rng)

	prevIdx := s.ECG.Newest().Index
	for i := 0; i < 1000; i++ {
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		for name, r := range map[string]Ring{"ecg": s.ECG, "pleth": s.Pleth, "resp": s.Resp} {
			if r.Len() != WindowSize {
				t.Fatalf("tick %d: %s ring length %d, want %d", i, name, r.Len(), WindowSize)
			}
		}
		idx := s.ECG.Newest().Index
		if idx != prevIdx+1 {
			t.Fatalf("tick %d: newest index %d, want %d", i, idx, prevIdx+1)
		}
		if s.Pleth.Newest().Index != idx || s.Resp.Newest().Index != idx {
			t.Fatalf("tick %d: waveforms out of step", i)
		}
		prevIdx = idx
	}
}

func TestRingSince(t *testing.T) {
	r := NewRing(4, 10, 0)
	r.Push(models.Sample{Index: 14, Value: 1})

	tests := []struct {
		name  string
		since int64
		want  []int64
	}{
		{"newest only", 14, []int64{14}},
		{"several", 12, []int64{12, 13, 14}},
		{"older than window", 0, []int64{11, 12, 13, 14}},
		{"nothing new", 15, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Since(tt.since)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i, s := range got {
				if s.Index != tt.want[i] {
					t.Errorf("sample %d index = %d, want %d", i, s.Index, tt.want[i])
				}
			}
		})
	}
}

func TestAdvanceDoesNotMutatePrevious(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)
	before := s.ECG.Samples()

	_ = NewAdvancer(rng).Advance(s, def, models.PacerSettings{}, t0)

	after := s.ECG.Samples()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("previous state modified at sample %d", i)
		}
	}
	if s.SampleTime != WindowSize {
		t.Errorf("previous sample time modified: %d", s.SampleTime)
	}
}

func TestFirstTickEmitsBaseline(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)

	if s.NextBeatIn <= 0 {
		t.Fatalf("new state should wait for its first beat, countdown %d", s.NextBeatIn)
	}
	s = NewAdvancer(rng).Advance(s, def, models.PacerSettings{}, t0)

	if v := s.ECG.Newest().Value; v != 0 {
		t.Errorf("first ECG sample = %v, want 0", v)
	}
	if s.Cursor != 0 || len(s.Pattern) != 0 {
		t.Errorf("expected idle pattern, cursor=%d len=%d", s.Cursor, len(s.Pattern))
	}
}

func TestOneBeatCycleTraversesOneQRS(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)
	adv := NewAdvancer(rng)

	ticks := s.NextBeatIn + len(def.Pattern)
	peaks := 0
	for i := 0; i < ticks; i++ {
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		if s.ECG.Newest().Value >= 0.9 {
			peaks++
		}
	}

	if peaks != 1 {
		t.Errorf("expected exactly one R peak, got %d", peaks)
	}
	if len(s.Pattern) != 0 || s.Cursor != 0 {
		t.Errorf("pattern should be exhausted, cursor=%d len=%d", s.Cursor, len(s.Pattern))
	}
	if s.NextBeatIn <= 0 {
		t.Errorf("next beat should be scheduled, countdown %d", s.NextBeatIn)
	}
}

func TestCountdownRecomputedOnBeat(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	def := mustLookup(t, rhythm.VentricularTachycardia)
	s := New(mustLookup(t, rhythm.NormalSinus), rng, t0)
	s.NextBeatIn = 0

	s = NewAdvancer(rng).Advance(s, def, models.PacerSettings{}, t0)

	if s.TargetHeartRate != 180 {
		t.Errorf("target = %d, want 180", s.TargetHeartRate)
	}
	if want := IntervalFor(180) - 1; s.NextBeatIn != want {
		t.Errorf("countdown = %d, want %d", s.NextBeatIn, want)
	}
	if !s.LastBeatAt.Equal(t0) {
		t.Errorf("last beat at %v, want %v", s.LastBeatAt, t0)
	}
}

func TestDemandPacerCapturesSlowRhythm(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	def := mustLookup(t, rhythm.SinusBradycardia)
	s := New(def, rng, t0)
	s.NextBeatIn = 0
	pacer := models.PacerSettings{Mode: models.PacerDemand, Rate: 70}

	s = NewAdvancer(rng).Advance(s, def, pacer, t0)

	if !s.LastBeatPaced {
		t.Fatal("expected a paced beat")
	}
	if s.TargetHeartRate != 70 {
		t.Errorf("target = %d, want pacer rate 70", s.TargetHeartRate)
	}
	if want := IntervalFor(70) - 1; s.NextBeatIn != want {
		t.Errorf("countdown = %d, want %d", s.NextBeatIn, want)
	}
	paced := rhythm.PacedBeatPattern()
	if v := s.ECG.Newest().Value; v != paced[0] {
		t.Errorf("first sample = %v, want pacer spike %v", v, paced[0])
	}
	if len(s.Pattern) != len(paced) || s.Cursor != 1 {
		t.Errorf("expected paced pattern in progress, len=%d cursor=%d", len(s.Pattern), s.Cursor)
	}
	if len(s.Pulse) == 0 {
		t.Error("paced capture should start a pleth pulse")
	}
}

func TestDemandPacerInhibitedByFasterRhythm(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)
	s.NextBeatIn = 0

	s = NewAdvancer(rng).Advance(s, def, models.PacerSettings{Mode: models.PacerDemand, Rate: 50}, t0)

	if s.LastBeatPaced {
		t.Error("pacer should not fire when intrinsic rate exceeds demand rate")
	}
	if s.TargetHeartRate < 60 || s.TargetHeartRate > 100 {
		t.Errorf("intrinsic target %d outside sinus range", s.TargetHeartRate)
	}
}

func TestAsystoleStopsScheduling(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	def := mustLookup(t, rhythm.Asystole)
	s := New(mustLookup(t, rhythm.NormalSinus), rng, t0)
	s.NextBeatIn = 0
	adv := NewAdvancer(rng)

	s = adv.Advance(s, def, models.PacerSettings{}, t0)
	if s.TargetHeartRate != 0 {
		t.Fatalf("target = %d, want 0", s.TargetHeartRate)
	}
	if s.NextBeatIn != Never {
		t.Fatalf("countdown = %d, want never", s.NextBeatIn)
	}

	for i := 1; i < 200; i++ {
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		if v := s.ECG.Newest().Value; v != 0 {
			t.Fatalf("tick %d: ECG = %v, want 0", i, v)
		}
	}
	if s.NextBeatIn != Never {
		t.Errorf("countdown changed to %d", s.NextBeatIn)
	}
}

func TestLeadOffForcesFlatECG(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	def := mustLookup(t, rhythm.VentricularTachycardia)
	s := New(def, rng, t0)
	s.IsLeadOff = true
	s.NextBeatIn = 0
	adv := NewAdvancer(rng)

	for i := 0; i < 100; i++ {
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		if v := s.ECG.Newest().Value; v != 0 {
			t.Fatalf("tick %d: ECG = %v under lead-off", i, v)
		}
	}
	if s.Metrics.HeartRate != 0 {
		t.Errorf("heart rate = %d under lead-off", s.Metrics.HeartRate)
	}
	if s.NextBeatIn != 0 {
		t.Errorf("beat timing ran under lead-off, countdown %d", s.NextBeatIn)
	}
	if s.RespPhase == 0 {
		t.Error("respiration should keep animating under lead-off")
	}
}

func TestThirdDegreeBlockSchedulesIndependentPWaves(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	def := mustLookup(t, rhythm.ThirdDegreeAVBlock)
	s := New(def, rng, t0)
	adv := NewAdvancer(rng)

	if s.NextPWaveIn != IntervalFor(def.AtrialRate) {
		t.Fatalf("atrial countdown = %d, want %d", s.NextPWaveIn, IntervalFor(def.AtrialRate))
	}

	pWaves := 0
	beats := 0
	for i := 0; i < 320; i++ {
		prevP, prevBeat := s.LastPWaveAt, s.LastBeatAt
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		if !s.LastPWaveAt.Equal(prevP) {
			pWaves++
		}
		if !s.LastBeatAt.Equal(prevBeat) {
			beats++
		}
	}

	if pWaves != 9 {
		t.Errorf("expected 9 P-waves at 75/min over 8 s, got %d", pWaves)
	}
	if beats >= pWaves {
		t.Errorf("ventricular beats (%d) should be fewer than P-waves (%d)", beats, pWaves)
	}
}

func TestPlethScaleHasFloor(t *testing.T) {
	peak := func(spo2 int) float64 {
		rng := rand.New(rand.NewSource(11))
		def := mustLookup(t, rhythm.NormalSinus)
		s := New(def, rng, t0)
		s.Metrics.SpO2 = spo2
		s.PulseDue = true
		max := 0.0
		adv := NewAdvancer(rng)
		for i := 0; i < len(rhythm.PulsePattern()); i++ {
			s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
			max = math.Max(max, s.Pleth.Newest().Value)
		}
		return max - PlethBaseline
	}

	full := peak(100)
	floor := peak(0)
	if full <= 0 {
		t.Fatalf("expected a pulse, peak %v", full)
	}
	if math.Abs(floor-full*MinPlethScale) > 1e-9 {
		t.Errorf("low SpO2 peak %v, want %v", floor, full*MinPlethScale)
	}
}

func TestPlethIdleBaseline(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	def := mustLookup(t, rhythm.Asystole)
	s := New(def, rng, t0)
	s.NextBeatIn = Never

	s = NewAdvancer(rng).Advance(s, def, models.PacerSettings{}, t0)
	if v := s.Pleth.Newest().Value; v != PlethBaseline {
		t.Errorf("idle pleth = %v, want %v", v, PlethBaseline)
	}
}

func TestRespirationFrozenAtZeroRate(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	def := mustLookup(t, rhythm.NormalSinus)
	s := New(def, rng, t0)
	s.Metrics.RespiratoryRate = 0
	s.RespPhase = 0.25

	s = NewAdvancer(rng).Advance(s, def, models.PacerSettings{}, t0)
	if s.RespPhase != 0.25 {
		t.Errorf("phase moved to %v with zero rate", s.RespPhase)
	}
	if v := s.Resp.Newest().Value; math.Abs(v-RespAmplitude) > 1e-9 {
		t.Errorf("resp sample = %v, want %v", v, RespAmplitude)
	}
}

func TestAtrialFibrillationIrregularIntervals(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	def := mustLookup(t, rhythm.AtrialFibrillation)
	s := New(def, rng, t0)
	adv := NewAdvancer(rng)

	intervals := map[int]bool{}
	for i := 0; i < 2000; i++ {
		s = adv.Advance(s, def, models.PacerSettings{}, tickAt(i))
		if s.LastBeatAt.Equal(tickAt(i)) {
			intervals[s.NextBeatIn+1] = true
		}
	}
	if len(intervals) < 3 {
		t.Errorf("expected irregular R-R intervals, saw %v", intervals)
	}
}

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{60, 40},
		{75, 32},
		{180, 13},
		{300, 8},
		{0, Never},
	}
	for _, test := range tests {
		if got := IntervalFor(test.rate); got != test.want {
			t.Errorf("IntervalFor(%d) = %d, want %d", test.rate, got, test.want)
		}
	}
}
