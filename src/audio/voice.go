package audio

// ----- Voice Params ----- //

type oscSettings struct {
	wave   Wave
	octave int     // semitones
	detune float32 // cents
	phase  float32 // degrees
}

// voiceParams is the per-callback snapshot of everything a voice reads from the control surface.
type voiceParams struct {
	oscs       [numOscs]oscSettings
	filterType FilterType
	cutoff     float32
	resonance  float32
	stages     int
	adsr       adsrParams
	gain       float32
}

func defaultVoiceParams() voiceParams {
	return voiceParams{
		filterType: FilterLow,
		cutoff:     1200,
		resonance:  0.7,
		stages:     1,
		adsr:       defaultADSRParams(),
		gain:       0.15,
	}
}

// ----- Voice ----- //

type voiceState int

const (
	voiceIdle voiceState = iota
	voiceSounding
	voiceReleasing
)

type voice struct {
	oscs       oscBank
	filter     filter
	adsr       adsr
	sampleRate float32
	freq       float32
	gain       float32
	note       int
	state      voiceState
	lastUsed   uint64
}

func newVoice(sampleRate float32) *voice {
	return &voice{
		oscs:       newOscBank(),
		filter:     newFilter(),
		adsr:       newADSR(float64(sampleRate)),
		sampleRate: sampleRate,
		freq:       220,
		gain:       0.15,
		note:       noNote,
	}
}

func (v *voice) applyParams(p *voiceParams) {
	for i := range v.oscs {
		o := &v.oscs[i]
		s := &p.oscs[i]
		o.setWave(s.wave)
		if s.octave != o.octave {
			o.setOctave(s.octave)
		}
		if s.detune != o.detune {
			o.setDetune(s.detune)
		}
		o.setPhase(s.phase)
	}
	v.filter.setType(p.filterType)
	v.filter.setCutoff(p.cutoff)
	v.filter.setResonance(p.resonance)
	v.filter.setStages(p.stages)
	v.adsr.setParams(p.adsr)
	v.gain = p.gain
}

func (v *voice) noteOn(freq float32) {
	v.freq = freq
	v.adsr.noteOn()
}

func (v *voice) noteOff() {
	v.adsr.noteOff()
}

func (v *voice) isActive() bool {
	return v.adsr.active()
}

// render accumulates into out; callers zero it first.
func (v *voice) render(out []float32) {
	v.filter.prepare(v.sampleRate)
	for i := range out {
		sample := v.oscs.renderSample(v.freq, v.sampleRate)
		sample = v.filter.process(sample)
		level := float32(v.adsr.step())
		out[i] += v.gain * level * sample
	}
}

// ----- Lifecycle ----- //

// bind assigns the voice to note, whatever it was doing before.
func (v *voice) bind(note int, tick uint64) {
	v.note = note
	v.state = voiceSounding
	v.lastUsed = tick
}

// release starts the envelope release; the note stays bound until the envelope ends.
func (v *voice) release() {
	if v.state != voiceSounding {
		return
	}
	v.noteOff()
	v.state = voiceReleasing
}

// reclaim returns a released voice to the free list once it is silent.
func (v *voice) reclaim() {
	if v.state == voiceReleasing && !v.isActive() {
		v.state = voiceIdle
		v.note = noNote
	}
}

func (v *voice) isFree() bool {
	return v.state == voiceIdle && !v.isActive()
}
