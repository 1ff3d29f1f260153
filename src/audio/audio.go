package audio

import (
	"math"

	"github.com/jinjor/lan-jam/src/transport"
)

const (
	// DefaultSampleRate is the session sample rate used unless overridden.
	DefaultSampleRate = 48000
	// DefaultBlockFrames is the device block size requested on open.
	DefaultBlockFrames = 128
	// DefaultTargetBlocks is the jitter buffer depth held back before playback.
	DefaultTargetBlocks = 2

	maxBlockFrames  = transport.MaxBlockFrames
	numOscs         = 3
	maxFilterStages = 4
	seqRows         = 12
	seqSteps        = 16
	maxPoly         = 64
	jitterCapacity  = 64
	gateRatio       = 0.8
	activeEpsilon   = 1e-6
	noNote          = -1
)

// ----- Utility ----- //

func noteToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// degreeToNote maps a scale degree (0 = C) in the given keyboard octave to a MIDI note number.
func degreeToNote(degree int, octave int) int {
	return (octave+1)*12 + degree
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// eachBit calls f for every set bit of mask, lowest first.
func eachBit(mask uint16, f func(bit int)) {
	for bit := 0; mask != 0; bit++ {
		if mask&1 != 0 {
			f(bit)
		}
		mask >>= 1
	}
}
