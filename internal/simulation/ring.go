package simulation

import "github.com/synheart/synheart-monitor/internal/models"

// Ring is a fixed-length sliding window of waveform samples.
// Pushing overwrites the oldest sample; the length never changes.
type Ring struct {
	samples []models.Sample
	start   int // position of the oldest sample
}

// NewRing creates a ring of n samples with indices firstIndex..firstIndex+n-1
func NewRing(n int, firstIndex int64, value float64) Ring {
	samples := make([]models.Sample, n)
	for i := range samples {
		samples[i] = models.Sample{Index: firstIndex + int64(i), Value: value}
	}
	return Ring{samples: samples}
}

// Len is the fixed window size
func (r Ring) Len() int {
	return len(r.samples)
}

// Push drops the oldest sample and appends s as the newest
func (r *Ring) Push(s models.Sample) {
	if len(r.samples) == 0 {
		return
	}
	r.samples[r.start] = s
	r.start = (r.start + 1) % len(r.samples)
}

// Newest returns the most recently pushed sample
func (r Ring) Newest() models.Sample {
	if len(r.samples) == 0 {
		return models.Sample{}
	}
	return r.samples[(r.start+len(r.samples)-1)%len(r.samples)]
}

// Samples returns the window ordered oldest to newest
func (r Ring) Samples() []models.Sample {
	return r.Last(len(r.samples))
}

// Last returns up to k newest samples, oldest first
func (r Ring) Last(k int) []models.Sample {
	n := len(r.samples)
	if k > n {
		k = n
	}
	if k <= 0 {
		return []models.Sample{}
	}
	out := make([]models.Sample, k)
	first := r.start + n - k
	for i := 0; i < k; i++ {
		out[i] = r.samples[(first+i)%n]
	}
	return out
}

// Since returns the retained samples with Index >= idx, oldest first
func (r Ring) Since(idx int64) []models.Sample {
	if len(r.samples) == 0 {
		return []models.Sample{}
	}
	k := r.Newest().Index + 1 - idx
	if k > int64(len(r.samples)) {
		k = int64(len(r.samples))
	}
	return r.Last(int(k))
}

// Clone copies the backing array
func (r Ring) Clone() Ring {
	return Ring{
		samples: append([]models.Sample(nil), r.samples...),
		start:   r.start,
	}
}
