package audio

// ----- Voice Pool ----- //

// voicePool is owned by the callback thread; none of its methods are safe for concurrent use.
type voicePool struct {
	voices     []*voice
	tick       uint64
	sampleRate float32
}

func newVoicePool(size int, sampleRate float32) *voicePool {
	p := &voicePool{sampleRate: sampleRate}
	p.resize(size)
	return p
}

func (p *voicePool) size() int {
	return len(p.voices)
}

// resize replaces every voice and resets the tick counter.
func (p *voicePool) resize(size int) {
	size = clampInt(size, 1, maxPoly)
	voices := make([]*voice, size)
	for i := range voices {
		voices[i] = newVoice(p.sampleRate)
	}
	p.voices = voices
	p.tick = 0
}

func (p *voicePool) applyParams(vp *voiceParams) {
	for _, v := range p.voices {
		v.applyParams(vp)
	}
}

// noteOn retriggers the voice already bound to note, else takes a free voice,
// else steals the least recently used one. An existing binding wins over the
// free-voice search so a note never holds two voices.
func (p *voicePool) noteOn(note int, octave int) {
	v := p.bound(note)
	if v == nil {
		v = p.free()
	}
	if v == nil {
		v = p.leastRecentlyUsed()
	}
	p.tick++
	v.bind(note, p.tick)
	v.noteOn(float32(noteToFreq(degreeToNote(note, octave))))
}

func (p *voicePool) noteOff(note int) {
	for _, v := range p.voices {
		if v.note == note && v.isActive() {
			v.release()
		}
	}
}

// renderMixed adds every active voice into out and reclaims voices whose release finished.
func (p *voicePool) renderMixed(out []float32) {
	for _, v := range p.voices {
		if v.isActive() {
			v.render(out)
		}
		v.reclaim()
	}
}

func (p *voicePool) activeCount() int {
	n := 0
	for _, v := range p.voices {
		if v.isActive() {
			n++
		}
	}
	return n
}

func (p *voicePool) bound(note int) *voice {
	for _, v := range p.voices {
		if v.state != voiceIdle && v.note == note {
			return v
		}
	}
	return nil
}

func (p *voicePool) free() *voice {
	for _, v := range p.voices {
		if v.isFree() {
			return v
		}
	}
	return nil
}

func (p *voicePool) leastRecentlyUsed() *voice {
	oldest := p.voices[0]
	for _, v := range p.voices[1:] {
		if v.lastUsed < oldest.lastUsed {
			oldest = v
		}
	}
	return oldest
}
