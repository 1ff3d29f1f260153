package audio

import (
	"math"

	"github.com/chewxy/math32"
)

// ----- Filter Type ----- //

// FilterType selects the biquad response of every cascaded stage.
type FilterType int

const (
	FilterLow FilterType = iota
	FilterBand
	FilterHigh
)

var filterTypeNames = [...]string{
	FilterLow:  "low",
	FilterBand: "band",
	FilterHigh: "high",
}

func (t FilterType) String() string {
	if t < 0 || int(t) >= len(filterTypeNames) {
		return "unknown"
	}
	return filterTypeNames[t]
}

// Next returns the following filter type, wrapping back to low-pass.
func (t FilterType) Next() FilterType {
	return FilterType((int(t) + 1) % len(filterTypeNames))
}

// FilterTypeFromString parses "low", "band" or "high".
func FilterTypeFromString(s string) (FilterType, bool) {
	for i, name := range filterTypeNames {
		if name == s {
			return FilterType(i), true
		}
	}
	return FilterLow, false
}

// ----- Coefficients ----- //

type coefficients struct {
	b0, b1, b2 float32
	a1, a2     float32
}

func clampCutoff(cutoff float32, sampleRate float32) float32 {
	return clampFloat32(cutoff, 20, sampleRate*0.45)
}

func clampQ(q float32) float32 {
	return clampFloat32(q, 0.1, 10)
}

// computeCoefficients returns a0-normalized biquad coefficients (RBJ's cookbook).
func computeCoefficients(kind FilterType, cutoff float32, q float32, sampleRate float32) coefficients {
	cutoff = clampCutoff(cutoff, sampleRate)
	q = clampQ(q)
	w0 := 2 * math32.Pi * cutoff / sampleRate
	cosw := math32.Cos(w0)
	alpha := math32.Sin(w0) / (2 * q)

	var b0, b1, b2 float32
	switch kind {
	case FilterBand:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	case FilterHigh:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
	default:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
	}
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha
	return coefficients{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// ----- Filter ----- //

type filterStage struct {
	x1, x2 float32
	y1, y2 float32
}

type filter struct {
	kind      FilterType
	cutoff    float32 // Hz
	resonance float32 // Q
	stages    int     // 1 ~ 4
	coeffs    coefficients
	state     [maxFilterStages]filterStage
	dirty     bool
}

func newFilter() filter {
	return filter{
		kind:      FilterLow,
		cutoff:    1200,
		resonance: 0.7,
		stages:    1,
		dirty:     true,
	}
}

func (f *filter) setType(kind FilterType) {
	if kind < FilterLow || kind > FilterHigh {
		kind = FilterLow
	}
	if kind != f.kind {
		f.kind = kind
		f.dirty = true
	}
}

func (f *filter) setCutoff(hz float32) {
	if hz != f.cutoff {
		f.cutoff = hz
		f.dirty = true
	}
}

func (f *filter) setResonance(q float32) {
	if q != f.resonance {
		f.resonance = q
		f.dirty = true
	}
}

func (f *filter) setStages(n int) {
	n = clampInt(n, 1, maxFilterStages)
	if n != f.stages {
		f.stages = n
		f.dirty = true
	}
}

// prepare recomputes coefficients if needed; doing so clears every stage's history.
func (f *filter) prepare(sampleRate float32) {
	if !f.dirty {
		return
	}
	f.coeffs = computeCoefficients(f.kind, f.cutoff, f.resonance, sampleRate)
	for i := range f.state {
		f.state[i] = filterStage{}
	}
	f.dirty = false
}

func (f *filter) process(in float32) float32 {
	c := &f.coeffs
	x := in
	for i := 0; i < f.stages; i++ {
		st := &f.state[i]
		y := c.b0*x + c.b1*st.x1 + c.b2*st.x2 - c.a1*st.y1 - c.a2*st.y2
		st.x2 = st.x1
		st.x1 = x
		st.y2 = st.y1
		st.y1 = y
		x = y
	}
	return x
}

// ----- Frequency Response ----- //

// FrequencyResponse returns the magnitude in dB of the whole cascade at points
// log-spaced frequencies between 20 Hz and Nyquist.
func FrequencyResponse(kind FilterType, cutoff float32, q float32, stages int, sampleRate float32, points int) []float64 {
	if points <= 0 {
		return nil
	}
	stages = clampInt(stages, 1, maxFilterStages)
	c := computeCoefficients(kind, cutoff, q, sampleRate)
	sr := float64(sampleRate)
	logStart := math.Log10(20)
	logEnd := math.Log10(sr / 2)
	out := make([]float64, points)
	for i := range out {
		t := 0.0
		if points > 1 {
			t = float64(i) / float64(points-1)
		}
		freq := math.Pow(10, logStart+t*(logEnd-logStart))
		mag := magnitudeAt(c, 2*math.Pi*freq/sr)
		mag = math.Pow(mag, float64(stages))
		out[i] = 20 * math.Log10(math.Max(mag, 1e-5))
	}
	return out
}

func magnitudeAt(c coefficients, w float64) float64 {
	b0, b1, b2 := float64(c.b0), float64(c.b1), float64(c.b2)
	a1, a2 := float64(c.a1), float64(c.a2)
	numRe := b0 + b1*math.Cos(w) + b2*math.Cos(2*w)
	numIm := -(b1*math.Sin(w) + b2*math.Sin(2*w))
	denRe := 1 + a1*math.Cos(w) + a2*math.Cos(2*w)
	denIm := -(a1*math.Sin(w) + a2*math.Sin(2*w))
	return math.Sqrt(numRe*numRe+numIm*numIm) / math.Sqrt(denRe*denRe+denIm*denIm+1e-12)
}
