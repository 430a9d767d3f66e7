package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/synheart/synheart-monitor/internal/models"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

// Advancer produces the next ECG, pleth and respiration samples
type Advancer struct {
	rng *rand.Rand
}

// NewAdvancer creates an advancer drawing rates from rng
func NewAdvancer(rng *rand.Rand) *Advancer {
	return &Advancer{rng: rng}
}

// Advance runs one 25 ms tick and returns the new state; prev is not modified.
func (a *Advancer) Advance(prev *State, def rhythm.Definition, pacer models.PacerSettings, now time.Time) *State {
	s := prev.Clone()

	if s.IsLeadOff {
		s.Metrics.HeartRate = 0
		s.push(0)
		return s
	}

	if s.NextBeatIn == 0 {
		a.startBeat(s, def, pacer, now)
	}

	ecg := a.ventricularSample(s, def)
	if def.AtrialRate > 0 {
		ecg += atrialSample(s, def, now)
	} else {
		s.PWave = nil
		s.PWaveCursor = 0
	}

	s.push(ecg)

	if s.NextBeatIn > 0 {
		s.NextBeatIn--
	}
	return s
}

// startBeat picks the rate and pattern for a due beat and reschedules the countdown
func (a *Advancer) startBeat(s *State, def rhythm.Definition, pacer models.PacerSettings, now time.Time) {
	intrinsic := def.HeartRate(a.rng)
	paced := pacer.Enabled() && intrinsic < pacer.Rate

	target := intrinsic
	if paced {
		target = pacer.Rate
		s.Pattern = rhythm.PacedBeatPattern()
	} else {
		s.Pattern = cloneFloats(def.Pattern)
	}
	s.Cursor = 0
	s.TargetHeartRate = target
	s.NextBeatIn = IntervalFor(target)
	s.LastBeatAt = now
	s.LastBeatPaced = paced

	if paced || def.GeneratesOrganizedBeat {
		s.PulseDue = true
	}
}

func (a *Advancer) ventricularSample(s *State, def rhythm.Definition) float64 {
	if len(s.Pattern) == 0 {
		if def.FibrillatoryAmplitude > 0 {
			return (a.rng.Float64()*2 - 1) * def.FibrillatoryAmplitude
		}
		return 0
	}
	v := s.Pattern[s.Cursor]
	s.Cursor++
	if s.Cursor >= len(s.Pattern) {
		s.Cursor = 0
		s.Pattern = nil
	}
	return v
}

// atrialSample runs the P-wave track, which never looks at the ventricular countdown
func atrialSample(s *State, def rhythm.Definition, now time.Time) float64 {
	if s.NextPWaveIn == Never {
		s.NextPWaveIn = IntervalFor(def.AtrialRate)
	}
	if s.NextPWaveIn == 0 {
		s.PWave = rhythm.PWavePattern()
		s.PWaveCursor = 0
		s.LastPWaveAt = now
		s.NextPWaveIn = IntervalFor(def.AtrialRate)
	}

	var v float64
	if len(s.PWave) > 0 {
		v = s.PWave[s.PWaveCursor]
		s.PWaveCursor++
		if s.PWaveCursor >= len(s.PWave) {
			s.PWaveCursor = 0
			s.PWave = nil
		}
	}
	if s.NextPWaveIn > 0 {
		s.NextPWaveIn--
	}
	return v
}

// push appends one sample to every waveform and advances sample time
func (s *State) push(ecg float64) {
	idx := s.SampleTime
	s.ECG.Push(models.Sample{Index: idx, Value: ecg})
	s.Pleth.Push(models.Sample{Index: idx, Value: s.plethSample()})
	s.Resp.Push(models.Sample{Index: idx, Value: s.respSample()})
	s.SampleTime++
}

func (s *State) plethSample() float64 {
	if s.PulseDue && len(s.Pulse) == 0 {
		s.Pulse = rhythm.PulsePattern()
		s.PulseCursor = 0
		s.PulseDue = false
	}
	if len(s.Pulse) == 0 {
		return PlethBaseline
	}

	n := len(s.Pulse)
	envelope := 1.0
	if n > 1 {
		envelope = math.Sin(math.Pi * float64(s.PulseCursor) / float64(n-1))
	}
	scale := float64(s.Metrics.SpO2) / 100
	if scale < MinPlethScale {
		scale = MinPlethScale
	}
	v := PlethBaseline + s.Pulse[s.PulseCursor]*envelope*scale

	s.PulseCursor++
	if s.PulseCursor >= n {
		s.PulseCursor = 0
		s.Pulse = nil
	}
	return v
}

func (s *State) respSample() float64 {
	if rr := s.Metrics.RespiratoryRate; rr > 0 {
		s.RespPhase += float64(rr) / 60.0 / SamplesPerSecond
		s.RespPhase -= math.Floor(s.RespPhase)
	}
	return RespAmplitude * math.Sin(2*math.Pi*s.RespPhase)
}
