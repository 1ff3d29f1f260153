package audio

import (
	"sync"
)

// ----- Jitter Buffer ----- //

// JitterBuffer queues fixed-length PCM blocks between the network receiver (the
// only producer) and the audio callback (the only consumer). Block storage is
// recycled so steady-state Push and Pop do not allocate.
type JitterBuffer struct {
	mu     sync.Mutex
	blocks [jitterCapacity][]float32
	head   int
	count  int
	target int
}

// NewJitterBuffer returns an empty buffer that withholds playback until more
// than target blocks are queued.
func NewJitterBuffer(target int) *JitterBuffer {
	j := &JitterBuffer{}
	j.SetTargetBlocks(target)
	return j
}

// Push copies block to the tail, evicting the oldest blocks beyond capacity.
func (j *JitterBuffer) Push(block []float32) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.count == jitterCapacity {
		j.head = (j.head + 1) % jitterCapacity
		j.count--
	}
	tail := (j.head + j.count) % jitterCapacity
	slot := j.blocks[tail]
	if cap(slot) < len(block) {
		slot = make([]float32, len(block))
	}
	slot = slot[:len(block)]
	copy(slot, block)
	j.blocks[tail] = slot
	j.count++
}

// Pop copies the head block into out and returns the number of samples written,
// or 0 while the queue is at or below the target depth.
func (j *JitterBuffer) Pop(out []float32) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.count <= j.target {
		return 0
	}
	n := copy(out, j.blocks[j.head])
	j.head = (j.head + 1) % jitterCapacity
	j.count--
	return n
}

// SetTargetBlocks sets the buffering delay in blocks.
func (j *JitterBuffer) SetTargetBlocks(n int) {
	j.mu.Lock()
	j.target = clampInt(n, 0, jitterCapacity-1)
	j.mu.Unlock()
}

// TargetBlocks returns the buffering delay in blocks.
func (j *JitterBuffer) TargetBlocks() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.target
}

// Size returns the current queue depth.
func (j *JitterBuffer) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}
