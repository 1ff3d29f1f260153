package relay

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jinjor/lan-jam/src/transport"
)

type sent struct {
	payload string
	to      string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recorder) send(b []byte, to *net.UDPAddr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{payload: string(b), to: to.String()})
	return r.err
}

func (r *recorder) take() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
}

func newTestServer() *Server {
	s := NewServer(50000)
	s.now = func() time.Time { return time.Unix(100, 0) }
	return s
}

func TestHandleDiscovery(t *testing.T) {
	s := newTestServer()
	r := &recorder{}
	s.handle([]byte(transport.DiscoverMessage), addr(1), r.send)
	got := r.take()
	if len(got) != 1 || got[0].payload != "LANJAM_SERVER:50000" || got[0].to != "10.0.0.1:1" {
		t.Fatalf("unexpected replies %v", got)
	}
	if s.DiscoveryCount.Load() != 1 {
		t.Error("expected discovery to be counted")
	}
	if len(s.Peers()) != 0 {
		t.Error("discovery must not register a peer")
	}
	if s.handleDiscovery([]byte("hello"), addr(1), r.send) {
		t.Error("expected other payloads to be ignored")
	}
}

func TestHandleHello(t *testing.T) {
	s := newTestServer()
	r := &recorder{}
	s.handle([]byte(transport.HelloMessage), addr(1), r.send)
	got := r.take()
	if len(got) != 1 || got[0].payload != transport.WelcomeMessage {
		t.Fatalf("unexpected replies %v", got)
	}
	if s.HandshakeCount.Load() != 1 {
		t.Error("expected handshake to be counted")
	}
	peers := s.Peers()
	if len(peers) != 1 || peers[0].Endpoint != "10.0.0.1:1" || !peers[0].LastSeen.Equal(time.Unix(100, 0)) {
		t.Errorf("unexpected peers %v", peers)
	}
}

func TestForwardToOthers(t *testing.T) {
	s := newTestServer()
	r := &recorder{}
	pcm := string(transport.EncodePCM(nil, []float32{0.5}))

	// a lone peer has nobody to hear it
	s.handle([]byte(pcm), addr(1), r.send)
	if got := r.take(); len(got) != 0 {
		t.Fatalf("unexpected forwards %v", got)
	}

	s.handle([]byte(transport.HelloMessage), addr(2), r.send)
	s.handle([]byte(transport.HelloMessage), addr(3), r.send)
	r.take()

	s.handle([]byte(pcm), addr(1), r.send)
	got := r.take()
	if len(got) != 2 {
		t.Fatalf("expected 2 forwards, got %v", got)
	}
	for _, g := range got {
		if g.payload != pcm || g.to == "10.0.0.1:1" {
			t.Errorf("unexpected forward %v", g)
		}
	}
	if s.PacketsForwarded.Load() != 2 {
		t.Errorf("expected 2 forwarded, got %d", s.PacketsForwarded.Load())
	}
	for _, p := range s.Peers() {
		want := uint64(1)
		if p.Endpoint == "10.0.0.1:1" {
			want = 0
		}
		if p.PacketsForwarded != want {
			t.Errorf("%s: expected %d forwarded, got %d", p.Endpoint, want, p.PacketsForwarded)
		}
	}
}

func TestForwardErrorsAreLogged(t *testing.T) {
	s := newTestServer()
	ok := &recorder{}
	s.handle([]byte(transport.HelloMessage), addr(2), ok.send)
	failing := &recorder{err: fmt.Errorf("unreachable")}
	s.handle([]byte{0, 0, 0, 0}, addr(1), failing.send)
	if s.PacketsForwarded.Load() != 0 {
		t.Error("failed sends must not be counted")
	}
	lines := s.Log()
	if !strings.HasPrefix(lines[len(lines)-1], "Send error to 10.0.0.1:2") {
		t.Errorf("unexpected log %v", lines)
	}
}

func TestPeerJoinedLogged(t *testing.T) {
	s := newTestServer()
	r := &recorder{}
	s.handle([]byte{0, 0, 0, 0}, addr(1), r.send)
	s.handle([]byte{0, 0, 0, 0}, addr(1), r.send)
	s.handle([]byte{0, 0, 0, 0}, addr(2), r.send)
	joined := 0
	for _, line := range s.Log() {
		if strings.HasPrefix(line, "Peer joined") {
			joined++
		}
	}
	if joined != 2 {
		t.Errorf("expected 2 joins, got %d", joined)
	}
}

func TestLogIsBounded(t *testing.T) {
	s := newTestServer()
	for i := 0; i < maxLogLines+50; i++ {
		s.pushLog(fmt.Sprintf("line %d", i))
	}
	lines := s.Log()
	if len(lines) != maxLogLines {
		t.Fatalf("expected %d lines, got %d", maxLogLines, len(lines))
	}
	if lines[0] != "line 50" || lines[len(lines)-1] != fmt.Sprintf("line %d", maxLogLines+49) {
		t.Errorf("unexpected window %q .. %q", lines[0], lines[len(lines)-1])
	}
}

func TestServeRelaysBetweenClients(t *testing.T) {
	s := NewServer(0)
	s.DiscoveryPort = 0
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	relayAddr := fmt.Sprintf("127.0.0.1:%d", s.Port())
	a, err := transport.Listen(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := transport.Listen(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	sink := &blockSink{}
	go b.Receive(sink)
	go a.Receive(&blockSink{})

	if err := a.Connect(relayAddr); err != nil {
		t.Fatal(err)
	}
	if err := b.Connect(relayAddr); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return a.Stats().Welcomed.Load() && b.Stats().Welcomed.Load() })

	// longer than one Ethernet frame
	payload := transport.EncodePCM(nil, make([]float32, 512))
	waitFor(t, func() bool {
		if err := a.Send(payload); err != nil {
			t.Fatal(err)
		}
		return sink.count() > 0
	})
	if b.Stats().RxPackets.Load() == 0 {
		t.Error("expected b to receive PCM")
	}
	if got := sink.lastLen(); got != 512 {
		t.Errorf("expected 512 samples forwarded, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	lines := s.Log()
	if lines[len(lines)-1] != "Server stopped" {
		t.Errorf("unexpected last log line %q", lines[len(lines)-1])
	}
}

type blockSink struct {
	mu   sync.Mutex
	n    int
	last int
}

func (s *blockSink) Push(block []float32) {
	s.mu.Lock()
	s.n++
	s.last = len(block)
	s.mu.Unlock()
}

func (s *blockSink) lastLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *blockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
