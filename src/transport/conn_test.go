package transport

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

type blockRecorder struct {
	mu     sync.Mutex
	blocks [][]float32
}

func (r *blockRecorder) Push(block []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, append([]float32(nil), block...))
}

func (r *blockRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

func listenLocal(t *testing.T) *Conn {
	t.Helper()
	c, err := Listen(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func loopback(c *Conn) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.LocalAddr().Port))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleDatagram(t *testing.T) {
	c := listenLocal(t)
	sink := &blockRecorder{}
	var block []float32

	c.handleDatagram([]byte(WelcomeMessage), &block, sink)
	c.handleDatagram([]byte{1, 2, 3}, &block, sink)
	c.handleDatagram(nil, &block, sink)
	c.handleDatagram(EncodePCM(nil, []float32{0.5, -0.5}), &block, sink)

	stats := c.Stats()
	if !stats.Welcomed.Load() {
		t.Error("expected welcome to be recorded")
	}
	if got := stats.ControlPackets.Load(); got != 1 {
		t.Errorf("expected 1 control packet, got %d", got)
	}
	if got := stats.Malformed.Load(); got != 1 {
		t.Errorf("expected 1 malformed packet, got %d", got)
	}
	if got := stats.RxPackets.Load(); got != 1 {
		t.Errorf("expected 1 PCM packet, got %d", got)
	}
	if sink.count() != 1 || sink.blocks[0][1] != -0.5 {
		t.Errorf("unexpected blocks: %v", sink.blocks)
	}
}

func TestSendWithoutRemote(t *testing.T) {
	c := listenLocal(t)
	if c.Remote() != nil {
		t.Fatal("expected no remote")
	}
	if err := c.Send([]byte{0, 0, 0, 0}); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
}

func TestConnectAndReceive(t *testing.T) {
	a := listenLocal(t)
	b := listenLocal(t)

	// b plays the relay: it sees a's hello, then PCM
	sink := &blockRecorder{}
	done := make(chan error, 1)
	go func() { done <- b.Receive(sink) }()

	if err := a.Connect(loopback(b)); err != nil {
		t.Fatal(err)
	}
	if a.Remote().Port != b.LocalAddr().Port {
		t.Errorf("expected remote port %d, got %v", b.LocalAddr().Port, a.Remote())
	}
	waitFor(t, func() bool { return b.Stats().ControlPackets.Load() == 1 })

	if err := a.Send(EncodePCM(nil, []float32{0.25, 0.75})); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return sink.count() == 1 })
	sink.mu.Lock()
	got := sink.blocks[0]
	sink.mu.Unlock()
	if len(got) != 2 || got[0] != 0.25 || got[1] != 0.75 {
		t.Errorf("unexpected block %v", got)
	}

	b.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestConnectResolveError(t *testing.T) {
	c := listenLocal(t)
	if err := c.Connect("not a host:port:at all"); err == nil {
		t.Error("expected resolve error")
	}
}

func TestReceiveLongBlocks(t *testing.T) {
	a := listenLocal(t)
	b := listenLocal(t)
	sink := &blockRecorder{}
	go b.Receive(sink)
	a.SetRemote(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.LocalAddr().Port})

	sizes := []int{512, MaxBlockFrames}
	for _, n := range sizes {
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = float32(i) / float32(n)
		}
		if err := a.Send(EncodePCM(nil, samples)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return sink.count() == len(sizes) })
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, n := range sizes {
		got := sink.blocks[i]
		if len(got) != n {
			t.Errorf("block %d: expected %d samples, got %d", i, n, len(got))
			continue
		}
		if want := float32(n-1) / float32(n); got[n-1] != want {
			t.Errorf("block %d: expected last sample %v, got %v", i, want, got[n-1])
		}
	}
	if b.Stats().Malformed.Load() != 0 {
		t.Error("expected no malformed packets")
	}
}
