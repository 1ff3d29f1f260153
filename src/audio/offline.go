package audio

import (
	"io"

	"github.com/pkg/errors"
	wav "github.com/youpy/go-wav"
)

// RenderSamples runs a local-only engine for frames samples and returns the
// mixed output. Note requests and transport state already in params apply.
func RenderSamples(params *Params, sampleRate int, blockFrames int, frames int) []float32 {
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}
	e := NewEngine(sampleRate, params, nil, nil, nil)
	out := make([]float32, frames)
	for pos := 0; pos < frames; pos += blockFrames {
		end := pos + blockFrames
		if end > frames {
			end = frames
		}
		e.Process(out[pos:end])
	}
	return out
}

// RenderWAV writes seconds of offline output as 16-bit mono WAV.
func RenderWAV(w io.Writer, params *Params, sampleRate int, blockFrames int, seconds float64) error {
	if seconds <= 0 {
		return errors.Errorf("invalid duration %v", seconds)
	}
	frames := int(seconds * float64(sampleRate))
	out := RenderSamples(params, sampleRate, blockFrames, frames)
	samples := make([]wav.Sample, len(out))
	for i, v := range out {
		samples[i].Values[0] = int(clampFloat32(v, -1, 1) * 32767)
	}
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), 16)
	if err := writer.WriteSamples(samples); err != nil {
		return errors.Wrap(err, "failed to write WAV")
	}
	return nil
}
