// Package rhythm holds the closed catalog of simulated cardiac rhythms.
//
// Patterns are sampled at 40 Hz (one value per 25 ms tick). Definitions are
// immutable; Lookup hands out copies of the pattern slices.
package rhythm

import (
	"errors"
	"fmt"
	"math/rand"
)

// Rhythm identifiers
const (
	NormalSinus             = "NORMAL_SINUS"
	SinusBradycardia        = "SINUS_BRADYCARDIA"
	SinusTachycardia        = "SINUS_TACHYCARDIA"
	AtrialFibrillation      = "ATRIAL_FIBRILLATION"
	AtrialFlutter           = "ATRIAL_FLUTTER"
	SVT                     = "SVT"
	FirstDegreeAVBlock      = "FIRST_DEGREE_AV_BLOCK"
	ThirdDegreeAVBlock      = "THIRD_DEGREE_AV_BLOCK"
	VentricularTachycardia  = "VENTRICULAR_TACHYCARDIA"
	VentricularFibrillation = "VENTRICULAR_FIBRILLATION"
	PEA                     = "PEA"
	Asystole                = "ASYSTOLE"
)

// Default is the rhythm assigned to newly added patients
const Default = NormalSinus

// ErrUnknownRhythm is returned for ids outside the catalog
var ErrUnknownRhythm = errors.New("unknown rhythm")

// Definition describes one rhythm
type Definition struct {
	ID      string
	Name    string
	Pattern []float64

	// Inclusive range for the instantaneous ventricular rate
	MinRate int
	MaxRate int

	// AtrialRate > 0 means P-waves are scheduled independently of the QRS
	AtrialRate int

	IsLethal               bool
	GeneratesOrganizedBeat bool

	// FibrillatoryAmplitude is the peak of the noise emitted between complexes
	FibrillatoryAmplitude float64
}

// HeartRate draws a new instantaneous rate. Call once per beat decision.
func (d Definition) HeartRate(rng *rand.Rand) int {
	if d.MaxRate <= d.MinRate {
		return d.MinRate
	}
	return d.MinRate + rng.Intn(d.MaxRate-d.MinRate+1)
}

var (
	sinusPattern = []float64{
		0, 0.08, 0.15, 0.08, 0, 0, -0.1, 1.0, -0.3, 0, 0, 0.1, 0.2, 0.25, 0.2, 0.1, 0,
	}
	longPRPattern = []float64{
		0, 0.08, 0.15, 0.08, 0, 0, 0, 0, 0, -0.1, 1.0, -0.3, 0, 0, 0.1, 0.2, 0.25, 0.2, 0.1, 0,
	}
	narrowPattern = []float64{
		0, -0.1, 1.0, -0.3, 0, 0.1, 0.2, 0.15, 0,
	}
	qrsTPattern = []float64{
		0, -0.1, 1.0, -0.3, 0, 0, 0.1, 0.2, 0.25, 0.2, 0.1, 0,
	}
	escapePattern = []float64{
		0, -0.2, 0.8, 0.6, -0.4, -0.2, 0, 0, 0.1, 0.2, 0.2, 0.1, 0,
	}
	vtPattern = []float64{
		0, 0.4, 0.9, 1.0, 0.6, 0, -0.6, -1.0, -0.8, -0.4, 0, 0.1,
	}
	vfPattern = []float64{
		0.3, -0.2, 0.4, -0.35, 0.25, -0.3, 0.2, -0.15,
	}
	pWave        = []float64{0.08, 0.15, 0.08}
	pacerSpike   = []float64{1.4, 0}
	pacedQRS     = []float64{-0.2, 0.9, 0.7, -0.5, -0.3, 0, 0, 0.15, 0.25, 0.2, 0.1, 0}
	pulseProfile = []float64{
		0.2, 0.5, 0.85, 1.0, 0.9, 0.75, 0.6, 0.55, 0.58, 0.5, 0.4, 0.3, 0.22, 0.15, 0.08, 0.03,
	}
)

// flutterPattern is one 4:1 conducted cycle: sawtooth F-waves with a QRS after the fourth.
func flutterPattern() []float64 {
	saw := []float64{0.1, 0.05, -0.05, -0.1, -0.15, 0.1, 0.12, 0.11}
	out := make([]float64, 0, 32)
	for i := 0; i < 4; i++ {
		out = append(out, saw...)
	}
	copy(out[25:], []float64{-0.1, 1.0, -0.3, 0.05})
	return out
}

var catalog = []Definition{
	{ID: NormalSinus, Name: "Normal Sinus Rhythm", Pattern: sinusPattern, MinRate: 60, MaxRate: 100, GeneratesOrganizedBeat: true},
	{ID: SinusBradycardia, Name: "Sinus Bradycardia", Pattern: sinusPattern, MinRate: 40, MaxRate: 59, GeneratesOrganizedBeat: true},
	{ID: SinusTachycardia, Name: "Sinus Tachycardia", Pattern: sinusPattern, MinRate: 101, MaxRate: 150, GeneratesOrganizedBeat: true},
	{ID: AtrialFibrillation, Name: "Atrial Fibrillation", Pattern: qrsTPattern, MinRate: 80, MaxRate: 160, GeneratesOrganizedBeat: true, FibrillatoryAmplitude: 0.05},
	{ID: AtrialFlutter, Name: "Atrial Flutter (4:1)", Pattern: flutterPattern(), MinRate: 75, MaxRate: 75, GeneratesOrganizedBeat: true},
	{ID: SVT, Name: "Supraventricular Tachycardia", Pattern: narrowPattern, MinRate: 160, MaxRate: 220, GeneratesOrganizedBeat: true},
	{ID: FirstDegreeAVBlock, Name: "First-Degree AV Block", Pattern: longPRPattern, MinRate: 60, MaxRate: 90, GeneratesOrganizedBeat: true},
	{ID: ThirdDegreeAVBlock, Name: "Third-Degree AV Block", Pattern: escapePattern, MinRate: 30, MaxRate: 45, AtrialRate: 75, GeneratesOrganizedBeat: true},
	{ID: VentricularTachycardia, Name: "Ventricular Tachycardia", Pattern: vtPattern, MinRate: 180, MaxRate: 180, IsLethal: true},
	{ID: VentricularFibrillation, Name: "Ventricular Fibrillation", Pattern: vfPattern, MinRate: 300, MaxRate: 300, IsLethal: true, FibrillatoryAmplitude: 0.1},
	{ID: PEA, Name: "Pulseless Electrical Activity", Pattern: sinusPattern, MinRate: 60, MaxRate: 80, IsLethal: true},
	{ID: Asystole, Name: "Asystole", Pattern: make([]float64, 40), MinRate: 0, MaxRate: 0, IsLethal: true},
}

var byID = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, d := range catalog {
		if _, dup := m[d.ID]; dup {
			panic("rhythm: duplicate definition " + d.ID)
		}
		m[d.ID] = i
	}
	return m
}()

// Lookup returns the definition for id
func Lookup(id string) (Definition, error) {
	i, ok := byID[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownRhythm, id)
	}
	return catalog[i].copy(), nil
}

// Valid reports whether id is in the catalog
func Valid(id string) bool {
	_, ok := byID[id]
	return ok
}

// All returns every definition in catalog order
func All() []Definition {
	out := make([]Definition, len(catalog))
	for i, d := range catalog {
		out[i] = d.copy()
	}
	return out
}

// PacedBeatPattern is the pacer spike followed by the paced QRS
func PacedBeatPattern() []float64 {
	out := make([]float64, 0, len(pacerSpike)+len(pacedQRS))
	out = append(out, pacerSpike...)
	return append(out, pacedQRS...)
}

// PWavePattern is an isolated atrial depolarization
func PWavePattern() []float64 {
	return append([]float64(nil), pWave...)
}

// PulsePattern is the raw plethysmograph pulse shape before envelope and scaling
func PulsePattern() []float64 {
	return append([]float64(nil), pulseProfile...)
}

func (d Definition) copy() Definition {
	d.Pattern = append([]float64(nil), d.Pattern...)
	return d
}
