package audio

// ----- Sequencer ----- //

// noteSink receives the sequencer's note events; the voice pool is the production sink.
type noteSink interface {
	noteOn(note int, octave int)
	noteOff(note int)
}

// seqSnapshot is what the sequencer reads from the control surface once per callback.
type seqSnapshot struct {
	bpm     int
	playing bool
	octave  int
	columns [seqSteps]uint16 // bit d set = degree d triggers on that step
}

type pendingRelease struct {
	at   float64 // global sample position
	mask uint16
}

const pendingReleaseSlots = seqSteps

// Sequencer advances a 16-step grid of 16th notes in sample time. It is owned by
// the callback thread and keeps all of its timing state explicitly.
type Sequencer struct {
	sampleRate float64
	step       int
	acc        float64 // samples since the last step boundary
	pos        int64   // samples processed since construction
	releases   [pendingReleaseSlots]pendingRelease
}

// NewSequencer creates a stopped sequencer at step 0.
func NewSequencer(sampleRate int) *Sequencer {
	return &Sequencer{sampleRate: float64(sampleRate)}
}

// Step is the current grid column.
func (s *Sequencer) Step() int {
	return s.step
}

// Position is the global sample position, i.e. the number of frames advanced so far.
func (s *Sequencer) Position() int64 {
	return s.pos
}

func (s *Sequencer) samplesPerStep(bpm int) float64 {
	if bpm <= 0 {
		bpm = 120
	}
	return s.sampleRate * 60 / float64(bpm) / 4
}

// reset rewinds to step 0 without touching pending releases.
func (s *Sequencer) reset() {
	s.step = 0
	s.acc = 0
}

// advance moves time forward by frames, emitting due releases first and then
// the note-ons of every step boundary crossed in this block.
func (s *Sequencer) advance(frames int, c *seqSnapshot, sink noteSink) {
	blockStart := s.pos
	blockEnd := blockStart + int64(frames)
	s.fireReleases(float64(blockEnd), sink)
	s.pos = blockEnd
	if !c.playing {
		s.acc = 0
		return
	}
	sps := s.samplesPerStep(c.bpm)
	s.acc += float64(frames)
	for s.acc >= sps {
		s.acc -= sps
		s.step = (s.step + 1) % seqSteps
		mask := c.columns[s.step]
		if mask == 0 {
			continue
		}
		eachBit(mask, func(degree int) {
			sink.noteOn(degree, c.octave)
		})
		boundary := float64(blockEnd) - s.acc
		s.schedule(boundary+gateRatio*sps, mask, sink)
	}
}

func (s *Sequencer) schedule(at float64, mask uint16, sink noteSink) {
	for i := range s.releases {
		r := &s.releases[i]
		if r.mask == 0 || r.at == at {
			r.at = at
			r.mask |= mask
			return
		}
	}
	// all slots busy: release the earliest now and reuse its slot
	earliest := 0
	for i := range s.releases {
		if s.releases[i].at < s.releases[earliest].at {
			earliest = i
		}
	}
	r := &s.releases[earliest]
	eachBit(r.mask, sink.noteOff)
	r.at = at
	r.mask = mask
}

func (s *Sequencer) fireReleases(until float64, sink noteSink) {
	for i := range s.releases {
		r := &s.releases[i]
		if r.mask == 0 || r.at > until {
			continue
		}
		eachBit(r.mask, sink.noteOff)
		r.mask = 0
		r.at = 0
	}
}

// pendingReleases reports how many release times are scheduled.
func (s *Sequencer) pendingReleases() int {
	n := 0
	for _, r := range s.releases {
		if r.mask != 0 {
			n++
		}
	}
	return n
}
