package audio

import (
	"time"

	"github.com/jinjor/lan-jam/src/transport"
)

// PayloadSender ships one encoded block to the network. Errors are counted, not retried.
type PayloadSender interface {
	Send(payload []byte) error
}

// ----- Engine ----- //

// Engine renders one callback's worth of audio: sequencer, voices, remote mix,
// then the outbound payload. Everything it owns belongs to the callback thread.
type Engine struct {
	sampleRate int
	params     *Params
	jitter     *JitterBuffer
	sender     PayloadSender
	stats      *Stats
	scope      *Scope

	seq     *Sequencer
	pool    *voicePool
	vp      voiceParams
	snap    seqSnapshot
	remote  []float32
	payload []byte
	now     func() time.Time
}

// NewEngine wires an engine. jitter and sender may be nil for a local-only session.
func NewEngine(sampleRate int, params *Params, jitter *JitterBuffer, sender PayloadSender, stats *Stats) *Engine {
	if stats == nil {
		stats = &Stats{}
	}
	return &Engine{
		sampleRate: sampleRate,
		params:     params,
		jitter:     jitter,
		sender:     sender,
		stats:      stats,
		scope:      &Scope{},
		seq:        NewSequencer(sampleRate),
		pool:       newVoicePool(params.Polyphony(), float32(sampleRate)),
		vp:         defaultVoiceParams(),
		remote:     make([]float32, maxBlockFrames),
		payload:    make([]byte, 0, maxBlockFrames*transport.SampleSize),
		now:        time.Now,
	}
}

func (e *Engine) SampleRate() int {
	return e.sampleRate
}

func (e *Engine) Stats() *Stats {
	return e.stats
}

// Scope holds the most recent mixed output for monitoring.
func (e *Engine) Scope() *Scope {
	return e.scope
}

// Sequencer exposes the engine's sequencer for inspection.
func (e *Engine) Sequencer() *Sequencer {
	return e.seq
}

// Process is the device callback. Blocks longer than the internal scratch
// buffers are processed in chunks, each one producing its own payload.
func (e *Engine) Process(out []float32) {
	for len(out) > 0 {
		n := len(out)
		if n > maxBlockFrames {
			n = maxBlockFrames
		}
		e.processBlock(out[:n])
		out = out[n:]
	}
}

func (e *Engine) processBlock(out []float32) {
	start := e.now()
	p := e.params

	// 1. silence
	for i := range out {
		out[i] = 0
	}

	// 2. sequencer
	if p.takeStepReset() {
		e.seq.reset()
	}
	p.loadSeqSnapshot(&e.snap)
	e.seq.advance(len(out), &e.snap, e.pool)
	p.publishStep(e.seq.Step())

	// 3. note requests
	on, off := p.drainNoteRequests()
	octave := e.snap.octave
	eachBit(on, func(degree int) {
		e.pool.noteOn(degree, octave)
	})
	eachBit(off, e.pool.noteOff)

	// 4. polyphony
	if poly := p.Polyphony(); poly != e.pool.size() {
		e.pool.resize(poly)
	}

	// 5. params
	p.loadVoiceParams(&e.vp)
	e.pool.applyParams(&e.vp)

	// 6. voices
	e.pool.renderMixed(out)
	e.stats.ActiveVoices.Store(int32(e.pool.activeCount()))

	// 7. remote
	if e.jitter != nil {
		if target := p.TargetBlocks(); target != e.jitter.TargetBlocks() {
			e.jitter.SetTargetBlocks(target)
		}
		n := e.jitter.Pop(e.remote[:len(out)])
		gain := p.RemoteGain()
		for i := 0; i < n; i++ {
			out[i] += gain * e.remote[i]
		}
		e.stats.JitterDepth.Store(int32(e.jitter.Size()))
	}
	e.scope.write(out)

	// 8. send
	if e.sender != nil {
		e.payload = transport.EncodePCM(e.payload, out)
		if err := e.sender.Send(e.payload); err != nil {
			e.stats.SendErrors.Add(1)
		}
	}

	e.stats.Callbacks.Add(1)
	budget := time.Duration(len(out)) * time.Second / time.Duration(e.sampleRate)
	if e.now().Sub(start) > budget {
		e.stats.Xruns.Add(1)
	}
}
