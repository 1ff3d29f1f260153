package transport

import (
	"log"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
)

// BlockSink receives decoded PCM blocks. The slice is reused after Push returns.
type BlockSink interface {
	Push(block []float32)
}

// Stats are receive-side counters.
type Stats struct {
	RxPackets      atomic.Uint64
	Malformed      atomic.Uint64
	ControlPackets atomic.Uint64
	Welcomed       atomic.Bool
}

// Conn is a UDP endpoint with at most one remote peer (usually a relay).
type Conn struct {
	pc     *net.UDPConn
	remote atomic.Pointer[net.UDPAddr]
	stats  *Stats
}

// Listen binds a UDP socket on port (0 picks a free one).
func Listen(port int, stats *Stats) (*Conn, error) {
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on UDP port %d", port)
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Conn{pc: pc, stats: stats}, nil
}

func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.pc.LocalAddr().(*net.UDPAddr)
}

func (c *Conn) Stats() *Stats {
	return c.stats
}

// Remote returns the current peer, or nil before Connect.
func (c *Conn) Remote() *net.UDPAddr {
	return c.remote.Load()
}

func (c *Conn) SetRemote(addr *net.UDPAddr) {
	c.remote.Store(addr)
}

// Connect makes hostport the peer and greets it.
func (c *Conn) Connect(hostport string) error {
	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", hostport)
	}
	c.stats.Welcomed.Store(false)
	c.SetRemote(addr)
	if _, err := c.pc.WriteToUDP([]byte(HelloMessage), addr); err != nil {
		return errors.Wrap(err, "failed to send hello")
	}
	return nil
}

// Send writes one datagram to the peer. With no peer it is a no-op.
func (c *Conn) Send(payload []byte) error {
	addr := c.remote.Load()
	if addr == nil {
		return nil
	}
	_, err := c.pc.WriteToUDP(payload, addr)
	return err
}

// Receive blocks reading datagrams into sink until the connection is closed.
// Closing is the normal way to stop it and yields a nil error.
func (c *Conn) Receive(sink BlockSink) error {
	buf := make([]byte, MaxDatagramSize)
	var block []float32
	for {
		n, _, err := c.pc.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("receive error: %v\n", err)
			continue
		}
		c.handleDatagram(buf[:n], &block, sink)
	}
}

func (c *Conn) handleDatagram(b []byte, block *[]float32, sink BlockSink) {
	if len(b) == 0 {
		return
	}
	if IsControl(b) {
		c.stats.ControlPackets.Add(1)
		if string(b) == WelcomeMessage {
			c.stats.Welcomed.Store(true)
		}
		return
	}
	decoded, err := DecodePCM(*block, b)
	if err != nil {
		c.stats.Malformed.Add(1)
		return
	}
	*block = decoded
	sink.Push(decoded)
	c.stats.RxPackets.Add(1)
}

func (c *Conn) Close() error {
	return c.pc.Close()
}
