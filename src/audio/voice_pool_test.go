package audio

import (
	"testing"
)

const (
	noteA = 0
	noteB = 4
	noteC = 7
)

func TestVoiceStealing(t *testing.T) {
	pool := newVoicePool(2, 48000)
	pool.noteOn(noteA, 4)
	pool.noteOn(noteB, 4)
	pool.noteOn(noteA, 4) // A played again, so B is now least recently used
	first := pool.voices[0]
	second := pool.voices[1]
	expectEqual(t, first.note, noteA)
	expectEqual(t, second.note, noteB)

	pool.noteOn(noteC, 4)
	expectEqual(t, first.note, noteA)
	expectEqual(t, second.note, noteC)
	expectNearlyEqual(t, float64(second.freq), noteToFreq(degreeToNote(noteC, 4)))

	out := make([]float32, 128)
	pool.renderMixed(out)
	expectEqual(t, first.isActive(), true)
	expectEqual(t, pool.activeCount(), 2)
}

func TestVoiceStealingWithoutRetrigger(t *testing.T) {
	pool := newVoicePool(2, 48000)
	pool.noteOn(noteA, 4)
	pool.noteOn(noteB, 4)
	pool.noteOn(noteC, 4)
	expectEqual(t, pool.voices[0].note, noteC)
	expectEqual(t, pool.voices[1].note, noteB)
}

func TestRetriggerReusesBoundVoice(t *testing.T) {
	pool := newVoicePool(4, 48000)
	pool.noteOn(noteA, 4)
	pool.noteOn(noteA, 5)
	n := 0
	for _, v := range pool.voices {
		if v.note == noteA {
			n++
		}
	}
	expectEqual(t, n, 1)
	expectNearlyEqual(t, float64(pool.voices[0].freq), noteToFreq(degreeToNote(noteA, 5)))
}

func TestReleasingVoiceIsPreferredOverFreeOnes(t *testing.T) {
	pool := newVoicePool(4, 48000)
	pool.noteOn(noteA, 4)
	pool.noteOff(noteA)
	expectEqual(t, pool.voices[0].state, voiceReleasing)
	pool.noteOn(noteA, 4)
	expectEqual(t, pool.voices[0].state, voiceSounding)
	expectEqual(t, pool.activeCount(), 1)
}

func TestReleasedVoiceIsReclaimed(t *testing.T) {
	pool := newVoicePool(1, 48000)
	vp := defaultVoiceParams()
	vp.adsr.release = 0.001
	pool.applyParams(&vp)
	pool.noteOn(noteA, 4)
	pool.renderMixed(make([]float32, 128))
	pool.noteOff(noteA)
	expectEqual(t, pool.voices[0].state, voiceReleasing)
	expectEqual(t, pool.free(), (*voice)(nil))

	pool.renderMixed(make([]float32, 128))
	expectEqual(t, pool.voices[0].state, voiceIdle)
	expectEqual(t, pool.free(), pool.voices[0])
	expectEqual(t, pool.activeCount(), 0)
}

func TestNoteOffIgnoresOtherNotes(t *testing.T) {
	pool := newVoicePool(2, 48000)
	pool.noteOn(noteA, 4)
	pool.noteOff(noteB)
	expectEqual(t, pool.voices[0].state, voiceSounding)
}

func TestVoicePoolResize(t *testing.T) {
	pool := newVoicePool(4, 48000)
	pool.noteOn(noteA, 4)
	pool.resize(100)
	expectEqual(t, pool.size(), maxPoly)
	expectEqual(t, pool.activeCount(), 0)
	expectEqual(t, pool.tick, uint64(0))
	pool.resize(0)
	expectEqual(t, pool.size(), 1)
}
