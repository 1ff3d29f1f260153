package transport

import (
	"bytes"
	"strconv"
)

const (
	// DefaultPort carries PCM and the hello handshake.
	DefaultPort = 50000
	// DiscoveryPort is where relays answer broadcast discovery.
	DiscoveryPort = 50001

	DiscoverMessage   = "LANJAM_DISCOVER"
	ServerReplyPrefix = "LANJAM_SERVER"
	HelloMessage      = "LANJAM_HELLO"
	WelcomeMessage    = "LANJAM_WELCOME"

	// MaxBlockFrames is the longest block carried by one datagram.
	MaxBlockFrames = 4096
	// MaxDatagramSize is the largest UDP payload over IPv4. Receive buffers use it
	// so that no block is cut short.
	MaxDatagramSize = 65507
)

// IsControl reports whether the datagram is a handshake or discovery message
// rather than PCM.
func IsControl(b []byte) bool {
	return bytes.HasPrefix(b, []byte(DiscoverMessage)) ||
		bytes.HasPrefix(b, []byte(ServerReplyPrefix)) ||
		bytes.HasPrefix(b, []byte(HelloMessage)) ||
		bytes.HasPrefix(b, []byte(WelcomeMessage))
}

// ServerReply is what a relay sends back to a discovery probe.
func ServerReply(port int) []byte {
	return []byte(ServerReplyPrefix + ":" + strconv.Itoa(port))
}

// ParseServerReply extracts the advertised port from a discovery reply.
func ParseServerReply(b []byte) (int, bool) {
	prefix := []byte(ServerReplyPrefix + ":")
	if !bytes.HasPrefix(b, prefix) {
		return 0, false
	}
	port, err := strconv.Atoi(string(bytes.TrimSpace(b[len(prefix):])))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
