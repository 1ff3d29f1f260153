package audio

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ----- Atomic Float ----- //

type atomicFloat struct {
	bits atomic.Uint32
}

func (f *atomicFloat) Load() float32 {
	return math.Float32frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float32) {
	f.bits.Store(math.Float32bits(v))
}

type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// ----- Params ----- //

type oscControls struct {
	wave   atomic.Int32
	octave atomic.Int32
	detune atomicFloat
	phase  atomicFloat
}

// Params is the live control-parameter set. Every field is synchronized on its
// own: the control surface writes, the audio callback reads once per block, and
// no group of fields is ever updated atomically as a whole.
type Params struct {
	oscs       [numOscs]oscControls
	filterType atomic.Int32
	cutoff     atomicFloat
	resonance  atomicFloat
	slope      atomic.Int32
	attack     atomicFloat64
	decay      atomicFloat64
	sustain    atomicFloat64
	release    atomicFloat64
	gain       atomicFloat
	remoteGain atomicFloat
	octave     atomic.Int32
	polyphony  atomic.Int32
	target     atomic.Int32

	bpm         atomic.Int32
	playing     atomic.Bool
	grid        [seqSteps]atomic.Uint32
	stepReset   atomic.Bool
	currentStep atomic.Int32

	noteOnRequests  atomic.Uint32
	noteOffRequests atomic.Uint32
}

// NewParams returns the default patch: three saws, 1200 Hz low-pass, 8 voices, 120 BPM.
func NewParams() *Params {
	p := &Params{}
	for i := 0; i < numOscs; i++ {
		p.SetOscWave(i, WaveSaw)
	}
	p.SetFilterType(FilterLow)
	p.SetCutoff(1200)
	p.SetResonance(0.7)
	p.SetSlope(1)
	d := defaultADSRParams()
	p.SetAttack(d.attack)
	p.SetDecay(d.decay)
	p.SetSustain(d.sustain)
	p.SetRelease(d.release)
	p.SetGain(0.15)
	p.SetRemoteGain(0.5)
	p.SetOctave(4)
	p.SetPolyphony(8)
	p.SetTargetBlocks(DefaultTargetBlocks)
	p.SetBPM(120)
	return p
}

// ----- Setters (values are clamped, never rejected) ----- //

func validOsc(index int) bool {
	return index >= 0 && index < numOscs
}

func (p *Params) SetOscWave(index int, w Wave) {
	if !validOsc(index) {
		return
	}
	if w < WaveSaw || w > WaveSine {
		w = WaveSaw
	}
	p.oscs[index].wave.Store(int32(w))
}

func (p *Params) SetOscOctave(index int, semitones int) {
	if validOsc(index) {
		p.oscs[index].octave.Store(int32(clampInt(semitones, -24, 24)))
	}
}

func (p *Params) SetOscDetune(index int, cents float32) {
	if validOsc(index) {
		p.oscs[index].detune.Store(clampFloat32(cents, -200, 200))
	}
}

// SetOscPhase stores the phase offset in degrees, wrapped into [0,360).
func (p *Params) SetOscPhase(index int, degrees float32) {
	if validOsc(index) {
		p.oscs[index].phase.Store(wrapPhase(degrees/360) * 360)
	}
}

func (p *Params) SetFilterType(t FilterType) {
	if t < FilterLow || t > FilterHigh {
		t = FilterLow
	}
	p.filterType.Store(int32(t))
}

// SetCutoff clamps to the audible range; the per-sample-rate ceiling is applied
// when coefficients are computed.
func (p *Params) SetCutoff(hz float32) {
	p.cutoff.Store(clampFloat32(hz, 20, 20000))
}

func (p *Params) SetResonance(q float32)   { p.resonance.Store(clampQ(q)) }
func (p *Params) SetSlope(stages int)      { p.slope.Store(int32(clampInt(stages, 1, maxFilterStages))) }
func (p *Params) SetAttack(sec float64)    { p.attack.Store(math.Max(0, sec)) }
func (p *Params) SetDecay(sec float64)     { p.decay.Store(math.Max(0, sec)) }
func (p *Params) SetSustain(level float64) { p.sustain.Store(clampFloat64(level, 0, 1)) }
func (p *Params) SetRelease(sec float64)   { p.release.Store(math.Max(0, sec)) }
func (p *Params) SetGain(g float32)        { p.gain.Store(clampFloat32(g, 0, 1)) }
func (p *Params) SetRemoteGain(g float32)  { p.remoteGain.Store(clampFloat32(g, 0, 1)) }
func (p *Params) SetOctave(octave int)     { p.octave.Store(int32(clampInt(octave, 1, 7))) }
func (p *Params) SetPolyphony(voices int)  { p.polyphony.Store(int32(clampInt(voices, 1, maxPoly))) }
func (p *Params) SetTargetBlocks(n int)    { p.target.Store(int32(clampInt(n, 0, jitterCapacity-1))) }
func (p *Params) SetBPM(bpm int)           { p.bpm.Store(int32(clampInt(bpm, 40, 240))) }
func (p *Params) SetPlaying(playing bool)  { p.playing.Store(playing) }

// ----- Getters ----- //

func (p *Params) OscWave(index int) Wave      { return Wave(p.oscs[index].wave.Load()) }
func (p *Params) OscOctave(index int) int     { return int(p.oscs[index].octave.Load()) }
func (p *Params) OscDetune(index int) float32 { return p.oscs[index].detune.Load() }
func (p *Params) OscPhase(index int) float32  { return p.oscs[index].phase.Load() }
func (p *Params) FilterType() FilterType      { return FilterType(p.filterType.Load()) }
func (p *Params) Cutoff() float32             { return p.cutoff.Load() }
func (p *Params) Resonance() float32          { return p.resonance.Load() }
func (p *Params) Slope() int                  { return int(p.slope.Load()) }
func (p *Params) Attack() float64             { return p.attack.Load() }
func (p *Params) Decay() float64              { return p.decay.Load() }
func (p *Params) Sustain() float64            { return p.sustain.Load() }
func (p *Params) Release() float64            { return p.release.Load() }
func (p *Params) Gain() float32               { return p.gain.Load() }
func (p *Params) RemoteGain() float32         { return p.remoteGain.Load() }
func (p *Params) Octave() int                 { return int(p.octave.Load()) }
func (p *Params) Polyphony() int              { return int(p.polyphony.Load()) }
func (p *Params) TargetBlocks() int           { return int(p.target.Load()) }
func (p *Params) BPM() int                    { return int(p.bpm.Load()) }
func (p *Params) Playing() bool               { return p.playing.Load() }
func (p *Params) CurrentStep() int            { return int(p.currentStep.Load()) }

// ----- Transport ----- //

// Play starts the sequencer from wherever it stopped.
func (p *Params) Play() { p.playing.Store(true) }

// Stop halts the sequencer and rewinds it to step 0.
func (p *Params) Stop() {
	p.playing.Store(false)
	p.stepReset.Store(true)
}

// Restart rewinds to step 0 and plays.
func (p *Params) Restart() {
	p.stepReset.Store(true)
	p.playing.Store(true)
}

func (p *Params) takeStepReset() bool {
	return p.stepReset.Swap(false)
}

func (p *Params) publishStep(step int) {
	p.currentStep.Store(int32(step))
}

// ----- Grid ----- //

func validCell(row int, step int) bool {
	return row >= 0 && row < seqRows && step >= 0 && step < seqSteps
}

// Cell reports whether scale degree row triggers on step.
func (p *Params) Cell(row int, step int) bool {
	if !validCell(row, step) {
		return false
	}
	return p.grid[step].Load()&(1<<uint(row)) != 0
}

// SetCell sets a single grid cell without disturbing its neighbours.
func (p *Params) SetCell(row int, step int, on bool) {
	if !validCell(row, step) {
		return
	}
	bit := uint32(1) << uint(row)
	col := &p.grid[step]
	for {
		old := col.Load()
		next := old &^ bit
		if on {
			next = old | bit
		}
		if col.CompareAndSwap(old, next) {
			return
		}
	}
}

// ToggleCell flips a grid cell and returns its new value.
func (p *Params) ToggleCell(row int, step int) bool {
	on := !p.Cell(row, step)
	p.SetCell(row, step, on)
	return on
}

// ClearGrid turns every cell off.
func (p *Params) ClearGrid() {
	for i := range p.grid {
		p.grid[i].Store(0)
	}
}

// ----- Note Requests ----- //

func orBits(v *atomic.Uint32, bits uint32) {
	for {
		old := v.Load()
		if v.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

// RequestNoteOn asks the callback to start scale degree on its next block.
func (p *Params) RequestNoteOn(degree int) {
	if degree >= 0 && degree < seqRows {
		orBits(&p.noteOnRequests, 1<<uint(degree))
	}
}

// RequestNoteOff asks the callback to release scale degree on its next block.
func (p *Params) RequestNoteOff(degree int) {
	if degree >= 0 && degree < seqRows {
		orBits(&p.noteOffRequests, 1<<uint(degree))
	}
}

// drainNoteRequests returns and clears the pending request bitmasks.
func (p *Params) drainNoteRequests() (on uint16, off uint16) {
	return uint16(p.noteOnRequests.Swap(0)), uint16(p.noteOffRequests.Swap(0))
}

// ----- Snapshots ----- //

func (p *Params) loadVoiceParams(vp *voiceParams) {
	for i := range vp.oscs {
		c := &p.oscs[i]
		vp.oscs[i] = oscSettings{
			wave:   Wave(c.wave.Load()),
			octave: int(c.octave.Load()),
			detune: c.detune.Load(),
			phase:  c.phase.Load(),
		}
	}
	vp.filterType = FilterType(p.filterType.Load())
	vp.cutoff = p.cutoff.Load()
	vp.resonance = p.resonance.Load()
	vp.stages = int(p.slope.Load())
	vp.adsr = adsrParams{
		attack:  p.attack.Load(),
		decay:   p.decay.Load(),
		sustain: p.sustain.Load(),
		release: p.release.Load(),
	}
	vp.gain = p.gain.Load()
}

func (p *Params) loadSeqSnapshot(s *seqSnapshot) {
	s.bpm = int(p.bpm.Load())
	s.playing = p.playing.Load()
	s.octave = int(p.octave.Load())
	for i := range s.columns {
		s.columns[i] = uint16(p.grid[i].Load())
	}
}

// ----- Commands ----- //

// Update applies one control command such as
// "set osc 0 wave square", "set filter cutoff 800", "seq toggle 3 4" or "note_on 9".
func (p *Params) Update(command []string) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}
	switch command[0] {
	case "set":
		return p.set(command[1:])
	case "seq":
		return p.seq(command[1:])
	case "play":
		p.Play()
	case "stop":
		p.Stop()
	case "note_on", "note_off":
		if len(command) != 2 {
			return errors.Errorf("%s takes one degree, got %v", command[0], command[1:])
		}
		degree, err := strconv.Atoi(command[1])
		if err != nil {
			return errors.Wrapf(err, "invalid degree %q", command[1])
		}
		if command[0] == "note_on" {
			p.RequestNoteOn(degree)
		} else {
			p.RequestNoteOff(degree)
		}
	default:
		return errors.Errorf("unknown command %v", command[0])
	}
	return nil
}

func (p *Params) set(command []string) error {
	if len(command) == 0 {
		return errors.New("set: missing group")
	}
	group, command := command[0], command[1:]
	switch group {
	case "osc":
		if len(command) != 3 {
			return errors.Errorf("invalid osc command %v", command)
		}
		index, err := strconv.Atoi(command[0])
		if err != nil || !validOsc(index) {
			return errors.Errorf("invalid osc index %q", command[0])
		}
		return p.setOsc(index, command[1], command[2])
	case "filter":
		if len(command) != 2 {
			return errors.Errorf("invalid key-value pair %v", command)
		}
		return p.setFilter(command[0], command[1])
	case "adsr":
		if len(command) != 2 {
			return errors.Errorf("invalid key-value pair %v", command)
		}
		return p.setADSR(command[0], command[1])
	case "gain", "remote_gain", "octave", "poly", "bpm", "target":
		if len(command) != 1 {
			return errors.Errorf("%s takes one value, got %v", group, command)
		}
		return p.setScalar(group, command[0])
	}
	return errors.Errorf("unknown group %q", group)
}

func (p *Params) setOsc(index int, key string, value string) error {
	switch key {
	case "wave":
		w, ok := WaveFromString(value)
		if !ok {
			return errors.Errorf("unknown wave %q", value)
		}
		p.SetOscWave(index, w)
	case "octave":
		v, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrap(err, "octave")
		}
		p.SetOscOctave(index, v)
	case "detune":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return errors.Wrap(err, "detune")
		}
		p.SetOscDetune(index, float32(v))
	case "phase":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return errors.Wrap(err, "phase")
		}
		p.SetOscPhase(index, float32(v))
	default:
		return errors.Errorf("unknown osc key %q", key)
	}
	return nil
}

func (p *Params) setFilter(key string, value string) error {
	switch key {
	case "type":
		t, ok := FilterTypeFromString(value)
		if !ok {
			return errors.Errorf("unknown filter type %q", value)
		}
		p.SetFilterType(t)
	case "cutoff", "q":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return errors.Wrap(err, key)
		}
		if key == "cutoff" {
			p.SetCutoff(float32(v))
		} else {
			p.SetResonance(float32(v))
		}
	case "slope":
		v, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrap(err, "slope")
		}
		p.SetSlope(v)
	default:
		return errors.Errorf("unknown filter key %q", key)
	}
	return nil
}

func (p *Params) setADSR(key string, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrap(err, key)
	}
	switch key {
	case "attack":
		p.SetAttack(v)
	case "decay":
		p.SetDecay(v)
	case "sustain":
		p.SetSustain(v)
	case "release":
		p.SetRelease(v)
	default:
		return errors.Errorf("unknown adsr key %q", key)
	}
	return nil
}

func (p *Params) setScalar(key string, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return errors.Wrap(err, key)
	}
	switch key {
	case "gain":
		p.SetGain(float32(v))
	case "remote_gain":
		p.SetRemoteGain(float32(v))
	case "octave":
		p.SetOctave(int(v))
	case "poly":
		p.SetPolyphony(int(v))
	case "bpm":
		p.SetBPM(int(v))
	case "target":
		p.SetTargetBlocks(int(v))
	}
	return nil
}

func (p *Params) seq(command []string) error {
	if len(command) == 0 {
		return errors.New("seq: missing action")
	}
	switch command[0] {
	case "play":
		p.Play()
	case "stop":
		p.Stop()
	case "restart":
		p.Restart()
	case "clear":
		p.ClearGrid()
	case "toggle", "on", "off":
		if len(command) != 3 {
			return errors.Errorf("seq %s takes row and step, got %v", command[0], command[1:])
		}
		row, err := strconv.Atoi(command[1])
		if err != nil {
			return errors.Wrap(err, "row")
		}
		step, err := strconv.Atoi(command[2])
		if err != nil {
			return errors.Wrap(err, "step")
		}
		if !validCell(row, step) {
			return errors.Errorf("cell (%d,%d) out of range", row, step)
		}
		switch command[0] {
		case "toggle":
			p.ToggleCell(row, step)
		case "on":
			p.SetCell(row, step, true)
		case "off":
			p.SetCell(row, step, false)
		}
	default:
		return errors.Errorf("unknown seq action %q", command[0])
	}
	return nil
}

// ----- JSON ----- //

type oscJSON struct {
	Wave   string  `json:"wave"`
	Octave int     `json:"octave"`
	Detune float32 `json:"detune"`
	Phase  float32 `json:"phase"`
}

type filterJSON struct {
	Type   string  `json:"type"`
	Cutoff float32 `json:"cutoff"`
	Q      float32 `json:"q"`
	Slope  int     `json:"slope"`
}

type adsrJSON struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

type seqJSON struct {
	BPM  int      `json:"bpm"`
	Grid []string `json:"grid"` // one row per degree, 'x' = on
}

type paramsJSON struct {
	Oscs       []oscJSON  `json:"oscs"`
	Filter     filterJSON `json:"filter"`
	Adsr       adsrJSON   `json:"adsr"`
	Gain       float32    `json:"gain"`
	RemoteGain float32    `json:"remoteGain"`
	Octave     int        `json:"octave"`
	Poly       int        `json:"poly"`
	Seq        seqJSON    `json:"seq"`
}

// ApplyJSON loads a patch written by ToJSON. Fields missing from data keep
// their current values.
func (p *Params) ApplyJSON(data []byte) error {
	j := p.toJSON()
	if err := json.Unmarshal(data, j); err != nil {
		return errors.Wrap(err, "failed to apply JSON to params")
	}
	for i, o := range j.Oscs {
		if !validOsc(i) {
			break
		}
		w, _ := WaveFromString(o.Wave)
		p.SetOscWave(i, w)
		p.SetOscOctave(i, o.Octave)
		p.SetOscDetune(i, o.Detune)
		p.SetOscPhase(i, o.Phase)
	}
	t, _ := FilterTypeFromString(j.Filter.Type)
	p.SetFilterType(t)
	p.SetCutoff(j.Filter.Cutoff)
	p.SetResonance(j.Filter.Q)
	p.SetSlope(j.Filter.Slope)
	p.SetAttack(j.Adsr.Attack)
	p.SetDecay(j.Adsr.Decay)
	p.SetSustain(j.Adsr.Sustain)
	p.SetRelease(j.Adsr.Release)
	p.SetGain(j.Gain)
	p.SetRemoteGain(j.RemoteGain)
	p.SetOctave(j.Octave)
	p.SetPolyphony(j.Poly)
	p.SetBPM(j.Seq.BPM)
	for row := 0; row < seqRows; row++ {
		line := ""
		if row < len(j.Seq.Grid) {
			line = j.Seq.Grid[row]
		}
		for step := 0; step < seqSteps; step++ {
			p.SetCell(row, step, step < len(line) && line[step] == 'x')
		}
	}
	return nil
}

// ToJSON serializes the current patch and grid.
func (p *Params) ToJSON() ([]byte, error) {
	j := p.toJSON()
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode params")
	}
	return data, nil
}

func (p *Params) toJSON() *paramsJSON {
	j := &paramsJSON{
		Oscs: make([]oscJSON, numOscs),
		Filter: filterJSON{
			Type:   p.FilterType().String(),
			Cutoff: p.Cutoff(),
			Q:      p.Resonance(),
			Slope:  p.Slope(),
		},
		Adsr: adsrJSON{
			Attack:  p.Attack(),
			Decay:   p.Decay(),
			Sustain: p.Sustain(),
			Release: p.Release(),
		},
		Gain:       p.Gain(),
		RemoteGain: p.RemoteGain(),
		Octave:     p.Octave(),
		Poly:       p.Polyphony(),
		Seq:        seqJSON{BPM: p.BPM(), Grid: make([]string, seqRows)},
	}
	for i := range j.Oscs {
		j.Oscs[i] = oscJSON{
			Wave:   p.OscWave(i).String(),
			Octave: p.OscOctave(i),
			Detune: p.OscDetune(i),
			Phase:  p.OscPhase(i),
		}
	}
	for row := 0; row < seqRows; row++ {
		var b strings.Builder
		for step := 0; step < seqSteps; step++ {
			if p.Cell(row, step) {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		j.Seq.Grid[row] = b.String()
	}
	return j
}

// FilterShape is the magnitude response in dB of the current filter settings.
func (p *Params) FilterShape(sampleRate int, points int) []float64 {
	return FrequencyResponse(p.FilterType(), p.Cutoff(), p.Resonance(), p.Slope(), float32(sampleRate), points)
}
