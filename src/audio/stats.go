package audio

import (
	"fmt"
	"sync/atomic"
)

// Stats are counters written by the callback and read by the control surface.
type Stats struct {
	Callbacks    atomic.Uint64
	Xruns        atomic.Uint64
	SendErrors   atomic.Uint64
	JitterDepth  atomic.Int32
	ActiveVoices atomic.Int32
}

func (s *Stats) String() string {
	return fmt.Sprintf("callbacks=%d xruns=%d send_errors=%d jitter=%d voices=%d",
		s.Callbacks.Load(), s.Xruns.Load(), s.SendErrors.Load(), s.JitterDepth.Load(), s.ActiveVoices.Load())
}
