package audio

import "math"

// ----- ADSR Params ----- //

type adsrParams struct {
	attack  float64 // sec
	decay   float64 // sec
	sustain float64 // 0-1
	release float64 // sec
}

func defaultADSRParams() adsrParams {
	return adsrParams{attack: 0.01, decay: 0.1, sustain: 0.8, release: 0.2}
}

// ----- ADSR ----- //

type envStage int

const (
	stageIdle envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

/*
  1 +     x
    |    / \
    |   /   \
  s +  /     x------x
    | /              \
    |/                \
  0 +-----+---+------+---
    |a    |d  |      |r |

  every segment is a linear ramp with a per-sample increment
*/
type adsr struct {
	adsrParams
	sampleRate float64
	stage      envStage
	level      float64
	inc        float64
}

func newADSR(sampleRate float64) adsr {
	return adsr{adsrParams: defaultADSRParams(), sampleRate: sampleRate}
}

func (a *adsr) setParams(p adsrParams) {
	a.attack = math.Max(0, p.attack)
	a.decay = math.Max(0, p.decay)
	a.sustain = clampFloat64(p.sustain, 0, 1)
	a.release = math.Max(0, p.release)
}

// samples converts a segment length to at least one sample.
func (a *adsr) samples(sec float64) float64 {
	n := sec * a.sampleRate
	if n < 1 {
		return 1
	}
	return n
}

func (a *adsr) noteOn() {
	a.stage = stageAttack
	a.inc = 1 / a.samples(a.attack)
}

// noteOff ramps to zero from wherever the envelope currently sits.
func (a *adsr) noteOff() {
	if a.stage == stageIdle {
		return
	}
	a.stage = stageRelease
	a.inc = -a.level / a.samples(a.release)
}

func (a *adsr) step() float64 {
	switch a.stage {
	case stageAttack:
		// accumulated increments land just short of the target, so the
		// thresholds allow activeEpsilon of rounding
		a.level += a.inc
		if a.level >= 1-activeEpsilon {
			a.level = 1
			a.stage = stageDecay
			a.inc = -(1 - a.sustain) / a.samples(a.decay)
		}
	case stageDecay:
		a.level += a.inc
		if a.level <= a.sustain+activeEpsilon {
			a.level = a.sustain
			a.stage = stageSustain
			a.inc = 0
		}
	case stageSustain:
	case stageRelease:
		a.level += a.inc
		if a.level <= activeEpsilon {
			a.level = 0
			a.stage = stageIdle
			a.inc = 0
		}
	case stageIdle:
	}
	return a.level
}

func (a *adsr) active() bool {
	return a.stage != stageIdle || a.level > activeEpsilon
}
