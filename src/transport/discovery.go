package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrNoServer is returned when no relay answers before the timeout.
var ErrNoServer = errors.New("no server found")

// Discover probes for a relay and returns the address of the first one to
// answer. Without explicit targets it broadcasts on the discovery port.
func Discover(ctx context.Context, timeout time.Duration, targets ...*net.UDPAddr) (*net.UDPAddr, error) {
	if len(targets) == 0 {
		targets = []*net.UDPAddr{{IP: net.IPv4bcast, Port: DiscoveryPort}}
	}
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open discovery socket")
	}
	defer pc.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "failed to set deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		pc.SetReadDeadline(time.Now())
	})
	defer stop()

	for _, t := range targets {
		if _, err := pc.WriteToUDP([]byte(DiscoverMessage), t); err != nil {
			return nil, errors.Wrapf(err, "failed to probe %v", t)
		}
	}
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := pc.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrNoServer
			}
			return nil, errors.Wrap(err, "discovery failed")
		}
		if port, ok := ParseServerReply(buf[:n]); ok {
			return &net.UDPAddr{IP: from.IP, Port: port}, nil
		}
	}
}
