package audio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHeadlessDevice(t *testing.T) {
	d := NewHeadlessDevice()
	var calls atomic.Int32
	var taps atomic.Int32
	d.Tap = func(block []float32) {
		taps.Add(1)
		expectEqual(t, block[0], float32(0.5))
	}
	expectNoError(t, d.Open(48000, 48, func(out []float32) {
		expectEqual(t, len(out), 48)
		out[0] = 0.5
		calls.Add(1)
	}))
	expectNoError(t, d.Start())
	expectNoError(t, d.Start())
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	expectNoError(t, d.Stop())
	stopped := calls.Load()
	if stopped < 3 {
		t.Fatalf("expected at least 3 callbacks, got %d", stopped)
	}
	expectEqual(t, taps.Load(), stopped)

	time.Sleep(10 * time.Millisecond)
	expectEqual(t, calls.Load(), stopped)
	expectNoError(t, d.Close())
}

func TestHeadlessDeviceErrors(t *testing.T) {
	d := NewHeadlessDevice()
	if err := d.Start(); err == nil {
		t.Error("expected error before Open")
	}
	if err := d.Open(0, 128, func([]float32) {}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if err := NewOtoDevice().Open(48000, 0, func([]float32) {}); err == nil {
		t.Error("expected error for zero block size")
	}
	if err := NewOtoDevice().Start(); err == nil {
		t.Error("expected error before Open")
	}
}

func TestWriteBuffer(t *testing.T) {
	out := []float32{0, 1, -1, 2, 0.5}
	buf := make([]byte, len(out)*bytesPerSample)
	writeBuffer(out, buf, 0)
	writeBuffer(out, buf, 1)
	sample := func(i, ch int) int16 {
		lo := buf[bytesPerSample*i+2*ch]
		hi := buf[bytesPerSample*i+2*ch+1]
		return int16(uint16(lo) | uint16(hi)<<8)
	}
	expectEqual(t, sample(0, 0), int16(0))
	expectEqual(t, sample(1, 0), int16(32767))
	expectEqual(t, sample(2, 1), int16(-32767))
	expectEqual(t, sample(3, 1), int16(32767)) // clipped
	expectEqual(t, sample(4, 0), int16(16383))
	expectEqual(t, sample(4, 1), sample(4, 0))
}
