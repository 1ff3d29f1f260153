package audio

import (
	"github.com/chewxy/math32"
)

// ----- Wave ----- //

// Wave is the waveform of one sub-oscillator.
type Wave int

const (
	WaveSaw Wave = iota
	WaveSquare
	WaveSine
)

var waveNames = [...]string{
	WaveSaw:    "saw",
	WaveSquare: "square",
	WaveSine:   "sine",
}

func (w Wave) String() string {
	if w < 0 || int(w) >= len(waveNames) {
		return "unknown"
	}
	return waveNames[w]
}

// Next returns the following waveform, wrapping back to saw.
func (w Wave) Next() Wave {
	return Wave((int(w) + 1) % len(waveNames))
}

// WaveFromString parses "saw", "square" or "sine".
func WaveFromString(s string) (Wave, bool) {
	for i, name := range waveNames {
		if name == s {
			return Wave(i), true
		}
	}
	return WaveSaw, false
}

func waveValue(w Wave, phase float32) float32 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveSine:
		return math32.Sin(2 * math32.Pi * phase)
	case WaveSaw:
		return 2*phase - 1
	}
	return 2*phase - 1
}

// wrapPhase renormalizes p into [0,1), including negative values.
func wrapPhase(p float32) float32 {
	p -= math32.Floor(p)
	if p >= 1 {
		// -tiny wraps to 1-tiny which rounds up to 1 in float32
		p = 0
	}
	return p
}

// ----- OSC ----- //

type osc struct {
	wave        Wave
	octave      int     // semitones, -24 ~ 24
	detune      float32 // cents, -200 ~ 200
	phase       float32 // [0,1)
	phaseOffset float32 // [0,1)
	ratio       float32 // 2^(octave/12) * 2^(detune/1200)
}

func newOsc() osc {
	return osc{ratio: 1}
}

func (o *osc) setWave(w Wave) {
	if w < WaveSaw || w > WaveSine {
		w = WaveSaw
	}
	o.wave = w
}

func (o *osc) setOctave(semitones int) {
	o.octave = clampInt(semitones, -24, 24)
	o.updateRatio()
}

func (o *osc) setDetune(cents float32) {
	o.detune = clampFloat32(cents, -200, 200)
	o.updateRatio()
}

func (o *osc) setPhase(degrees float32) {
	frac := math32.Mod(degrees, 360) / 360
	o.phaseOffset = wrapPhase(frac)
}

func (o *osc) updateRatio() {
	o.ratio = math32.Pow(2, float32(o.octave)/12) * math32.Pow(2, o.detune/1200)
}

func (o *osc) step(baseInc float32) float32 {
	o.phase = wrapPhase(o.phase + baseInc*o.ratio)
	return waveValue(o.wave, wrapPhase(o.phase+o.phaseOffset))
}

// ----- OSC Bank ----- //

type oscBank [numOscs]osc

func newOscBank() oscBank {
	var b oscBank
	for i := range b {
		b[i] = newOsc()
	}
	return b
}

// renderSample advances every sub-oscillator by one sample and returns their mean.
func (b *oscBank) renderSample(baseFreq float32, sampleRate float32) float32 {
	baseInc := baseFreq / sampleRate
	sum := float32(0)
	for i := range b {
		sum += b[i].step(baseInc)
	}
	return sum / numOscs
}
