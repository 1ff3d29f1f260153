package transport

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often Control.Poll services requests.
const DefaultPollInterval = 50 * time.Millisecond

const discoverTimeout = time.Second

// Control carries connect and discover requests from the control surface to the
// network side, where they are serviced off the audio path.
type Control struct {
	connectRequested  atomic.Bool
	discoverRequested atomic.Bool

	mu     sync.Mutex
	host   string
	status string

	discover func(ctx context.Context) (*net.UDPAddr, error)
}

func NewControl() *Control {
	return &Control{
		status: "disconnected",
		discover: func(ctx context.Context) (*net.UDPAddr, error) {
			return Discover(ctx, discoverTimeout)
		},
	}
}

// RequestConnect asks the poller to switch the peer to hostport.
func (c *Control) RequestConnect(hostport string) {
	c.mu.Lock()
	c.host = hostport
	c.mu.Unlock()
	c.connectRequested.Store(true)
}

// RequestDiscover asks the poller to look for a relay and connect to it.
func (c *Control) RequestDiscover() {
	c.discoverRequested.Store(true)
}

// Host is the last requested or discovered peer.
func (c *Control) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Status is a one-line description of the last request outcome.
func (c *Control) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Control) setStatus(host string, status string) {
	c.mu.Lock()
	if host != "" {
		c.host = host
	}
	c.status = status
	c.mu.Unlock()
	log.Println(status)
}

// Poll services requests every interval until ctx is done.
func (c *Control) Poll(ctx context.Context, conn *Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.service(ctx, conn)
		}
	}
}

func (c *Control) service(ctx context.Context, conn *Conn) {
	if c.discoverRequested.Swap(false) {
		addr, err := c.discover(ctx)
		if err != nil {
			c.setStatus("", "discover: "+err.Error())
		} else {
			c.setStatus(addr.String(), "found server "+addr.String())
			c.connectRequested.Store(true)
		}
	}
	if c.connectRequested.Swap(false) {
		host := c.Host()
		if err := conn.Connect(host); err != nil {
			c.setStatus("", "connect: "+err.Error())
			return
		}
		c.setStatus("", "connected to "+host)
	}
}
