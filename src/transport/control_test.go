package transport

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestControlConnect(t *testing.T) {
	relay := listenLocal(t)
	conn := listenLocal(t)
	c := NewControl()
	if c.Status() != "disconnected" {
		t.Errorf("unexpected initial status %q", c.Status())
	}

	c.service(context.Background(), conn)
	if conn.Remote() != nil {
		t.Fatal("expected nothing to happen without a request")
	}

	c.RequestConnect(loopback(relay))
	c.service(context.Background(), conn)
	if conn.Remote() == nil || conn.Remote().Port != relay.LocalAddr().Port {
		t.Errorf("expected to be connected to the relay, got %v", conn.Remote())
	}
	if !strings.HasPrefix(c.Status(), "connected to ") {
		t.Errorf("unexpected status %q", c.Status())
	}
}

func TestControlConnectError(t *testing.T) {
	conn := listenLocal(t)
	c := NewControl()
	c.RequestConnect("nowhere:port")
	c.service(context.Background(), conn)
	if !strings.HasPrefix(c.Status(), "connect: ") {
		t.Errorf("unexpected status %q", c.Status())
	}
	if conn.Remote() != nil {
		t.Error("expected no remote after a failed connect")
	}
}

func TestControlDiscover(t *testing.T) {
	relay := listenLocal(t)
	conn := listenLocal(t)
	c := NewControl()
	c.discover = func(ctx context.Context) (*net.UDPAddr, error) {
		return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: relay.LocalAddr().Port}, nil
	}
	c.RequestDiscover()
	c.service(context.Background(), conn)
	if c.Host() != loopback(relay) {
		t.Errorf("expected host %s, got %s", loopback(relay), c.Host())
	}
	if conn.Remote() == nil {
		t.Error("expected discovery to connect")
	}
}

func TestControlDiscoverFailure(t *testing.T) {
	conn := listenLocal(t)
	c := NewControl()
	c.discover = func(ctx context.Context) (*net.UDPAddr, error) {
		return nil, ErrNoServer
	}
	c.RequestDiscover()
	c.service(context.Background(), conn)
	if c.Status() != "discover: no server found" {
		t.Errorf("unexpected status %q", c.Status())
	}
	if conn.Remote() != nil {
		t.Error("expected no connection")
	}
}

func TestControlPollStops(t *testing.T) {
	conn := listenLocal(t)
	c := NewControl()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Poll(ctx, conn, time.Millisecond) }()
	c.RequestConnect(loopback(conn))
	waitFor(t, func() bool { return conn.Remote() != nil })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not stop")
	}
}
