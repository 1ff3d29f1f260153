package relay

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinjor/lan-jam/src/transport"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const maxLogLines = 200

// Peer is a snapshot of one client the relay has heard from.
type Peer struct {
	Endpoint         string
	PacketsForwarded uint64
	LastSeen         time.Time
}

type peer struct {
	addr *net.UDPAddr
	Peer
}

type sendFunc func(b []byte, to *net.UDPAddr) error

// Server forwards every PCM datagram to all other known peers and answers
// discovery and hello messages.
type Server struct {
	// DiscoveryPort answers broadcast probes; zero or negative disables it.
	DiscoveryPort int

	DiscoveryCount   atomic.Uint64
	HandshakeCount   atomic.Uint64
	PacketsForwarded atomic.Uint64

	port      int
	sock      *net.UDPConn
	discovery *net.UDPConn

	mu    sync.Mutex
	peers map[string]*peer

	logMu sync.Mutex
	log   []string

	now func() time.Time
}

func NewServer(port int) *Server {
	return &Server{
		DiscoveryPort: transport.DiscoveryPort,
		port:          port,
		peers:         make(map[string]*peer),
		now:           time.Now,
	}
}

// Port is the bound relay port once Listen has returned.
func (s *Server) Port() int {
	return s.port
}

// ----- Serve ----- //

// Listen binds the relay socket and, when possible, the discovery socket.
func (s *Server) Listen() error {
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.port})
	if err != nil {
		return errors.Wrapf(err, "failed to listen on UDP port %d", s.port)
	}
	s.sock = sock
	s.port = sock.LocalAddr().(*net.UDPAddr).Port
	if s.DiscoveryPort > 0 && s.DiscoveryPort != s.port {
		discovery, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.DiscoveryPort})
		if err != nil {
			s.pushLog(fmt.Sprintf("Discovery disabled: %v", err))
		} else {
			s.discovery = discovery
		}
	}
	s.pushLog(fmt.Sprintf("Listening on UDP port %d", s.port))
	return nil
}

// Serve handles datagrams until ctx is done, calling Listen first if needed.
func (s *Server) Serve(ctx context.Context) error {
	if s.sock == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	sock, discovery := s.sock, s.discovery

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		if err := sock.Close(); err != nil {
			log.Printf("error while closing socket: %v", err)
		}
		if discovery != nil {
			if err := discovery.Close(); err != nil {
				log.Printf("error while closing socket: %v", err)
			}
		}
		return nil
	})
	eg.Go(func() error {
		return s.readLoop(sock, func(b []byte, from *net.UDPAddr) {
			s.handle(b, from, writer(sock))
		})
	})
	if discovery != nil {
		eg.Go(func() error {
			return s.readLoop(discovery, func(b []byte, from *net.UDPAddr) {
				s.handleDiscovery(b, from, writer(discovery))
			})
		})
	}
	err := eg.Wait()
	s.pushLog("Server stopped")
	return err
}

func writer(c *net.UDPConn) sendFunc {
	return func(b []byte, to *net.UDPAddr) error {
		_, err := c.WriteToUDP(b, to)
		return err
	}
}

func (s *Server) readLoop(c *net.UDPConn, handle func(b []byte, from *net.UDPAddr)) error {
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, from, err := c.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.pushLog("Receive error: " + err.Error())
			continue
		}
		if n == 0 {
			continue
		}
		handle(buf[:n], from)
	}
}

// ----- Handling ----- //

func (s *Server) handleDiscovery(b []byte, from *net.UDPAddr, send sendFunc) bool {
	if string(b) != transport.DiscoverMessage {
		return false
	}
	if err := send(transport.ServerReply(s.port), from); err != nil {
		s.pushLog(fmt.Sprintf("Discovery reply to %v failed: %v", from, err))
		return true
	}
	s.DiscoveryCount.Add(1)
	s.pushLog(fmt.Sprintf("Discovery from %v", from))
	return true
}

func (s *Server) handle(b []byte, from *net.UDPAddr, send sendFunc) {
	if s.handleDiscovery(b, from, send) {
		return
	}
	key := from.String()
	if string(b) == transport.HelloMessage {
		if err := send([]byte(transport.WelcomeMessage), from); err != nil {
			s.pushLog(fmt.Sprintf("Welcome to %s failed: %v", key, err))
		}
		s.HandshakeCount.Add(1)
		s.touch(key, from)
		s.pushLog("Handshake hello from " + key + " -> welcome sent")
		return
	}
	if joined, total := s.touch(key, from); joined {
		s.pushLog(fmt.Sprintf("Peer joined %s (total peers: %d)", key, total))
	}
	for _, p := range s.others(key) {
		if err := send(b, p.addr); err != nil {
			s.pushLog("Send error to " + p.Endpoint + ": " + err.Error())
			continue
		}
		s.PacketsForwarded.Add(1)
		s.forwarded(p.Endpoint)
	}
}

// touch records a peer and reports whether it is new along with the peer count.
func (s *Server) touch(key string, addr *net.UDPAddr) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[key]
	if !ok {
		p = &peer{Peer: Peer{Endpoint: key}}
		s.peers[key] = p
	}
	p.addr = addr
	p.LastSeen = s.now()
	return !ok, len(s.peers)
}

func (s *Server) others(key string) []peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]peer, 0, len(s.peers))
	for k, p := range s.peers {
		if k != key {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Server) forwarded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[key]; ok {
		p.PacketsForwarded++
		p.LastSeen = s.now()
	}
}

// Peers returns every known peer sorted by endpoint.
func (s *Server) Peers() []Peer {
	s.mu.Lock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.Peer)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// ----- Log ----- //

func (s *Server) pushLog(line string) {
	log.Println(line)
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.log = append(s.log, line)
	if over := len(s.log) - maxLogLines; over > 0 {
		s.log = append(s.log[:0], s.log[over:]...)
	}
}

// Log returns the most recent log lines, oldest first.
func (s *Server) Log() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]string(nil), s.log...)
}
