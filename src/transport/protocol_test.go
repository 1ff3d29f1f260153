package transport

import "testing"

func TestParseServerReply(t *testing.T) {
	port, ok := ParseServerReply(ServerReply(50000))
	if !ok || port != 50000 {
		t.Errorf("expected 50000, got %d %v", port, ok)
	}
	port, ok = ParseServerReply([]byte("LANJAM_SERVER:1234\n"))
	if !ok || port != 1234 {
		t.Errorf("expected 1234, got %d %v", port, ok)
	}
	for _, b := range []string{
		"LANJAM_SERVER",
		"LANJAM_SERVER:",
		"LANJAM_SERVER:abc",
		"LANJAM_SERVER:0",
		"LANJAM_SERVER:70000",
		"OTHER:50000",
	} {
		if _, ok := ParseServerReply([]byte(b)); ok {
			t.Errorf("expected %q to be rejected", b)
		}
	}
}

func TestIsControl(t *testing.T) {
	for _, b := range []string{DiscoverMessage, HelloMessage, WelcomeMessage, string(ServerReply(1))} {
		if !IsControl([]byte(b)) {
			t.Errorf("expected %q to be control", b)
		}
	}
	if IsControl(EncodePCM(nil, []float32{0.1, 0.2, 0.3})) {
		t.Error("expected PCM not to be control")
	}
	if IsControl(nil) {
		t.Error("expected empty datagram not to be control")
	}
}
