package audio

import (
	"math"
	"sync/atomic"
)

// ScopeSize is the number of most recent output samples a Scope keeps.
const ScopeSize = 1024

const (
	spectrumLowHz = 40.0
	spectrumFloor = -96.0
)

// Scope is a single-writer ring of the latest output samples. The callback
// writes it without locking; readers may observe a block boundary mid-update,
// which only matters for display.
type Scope struct {
	samples [ScopeSize]atomic.Uint32
	pos     atomic.Uint64
}

func (s *Scope) write(block []float32) {
	p := s.pos.Load()
	for i, v := range block {
		s.samples[(p+uint64(i))%ScopeSize].Store(math.Float32bits(v))
	}
	s.pos.Store(p + uint64(len(block)))
}

// Snapshot returns the last ScopeSize samples, oldest first.
func (s *Scope) Snapshot() []float64 {
	out := make([]float64, ScopeSize)
	p := s.pos.Load()
	for i := range out {
		out[i] = float64(math.Float32frombits(s.samples[(p+uint64(i))%ScopeSize].Load()))
	}
	return out
}

// Spectrum summarizes the snapshot as bands log-spaced from 40 Hz to Nyquist,
// each the peak level in dBFS of the bins it covers.
func (s *Scope) Spectrum(sampleRate int, bands int) []float64 {
	if bands <= 0 {
		return nil
	}
	out := make([]float64, bands)
	if sampleRate <= 0 {
		return out
	}
	fft, err := NewFFT(ScopeSize)
	if err != nil {
		panic(err)
	}
	x := s.Snapshot()
	Hann(x)
	fft.Magnitudes(x)

	nyquist := float64(sampleRate) / 2
	binHz := float64(sampleRate) / ScopeSize
	ratio := nyquist / spectrumLowHz
	for b := range out {
		lo := spectrumLowHz * math.Pow(ratio, float64(b)/float64(bands))
		hi := spectrumLowHz * math.Pow(ratio, float64(b+1)/float64(bands))
		first := int(lo / binHz)
		last := int(hi / binHz)
		if last < first+1 {
			last = first + 1
		}
		if last > ScopeSize/2 {
			last = ScopeSize / 2
		}
		peak := 0.0
		for i := first; i < last; i++ {
			peak = math.Max(peak, x[i])
		}
		// a full-scale sine peaks at N/4 after the Hann window
		level := spectrumFloor
		if peak > 0 {
			level = math.Max(20*math.Log10(peak*4/ScopeSize), spectrumFloor)
		}
		out[b] = level
	}
	return out
}
