package transport

import (
	"testing"

	"github.com/pkg/errors"
)

func TestEncodePCM(t *testing.T) {
	b := EncodePCM(nil, []float32{1, -0.5})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf}
	if len(b) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(b))
	}
	for i := range want {
		if b[i] != want[i] {
			t.Errorf("byte %d: expected %#x, got %#x", i, want[i], b[i])
		}
	}

	// storage is reused when it is large enough
	reused := EncodePCM(b[:0], []float32{0.25})
	if &reused[0] != &b[0] || len(reused) != 4 {
		t.Error("expected dst to be reused")
	}
}

func TestDecodePCM(t *testing.T) {
	samples := []float32{0, 0.125, -1, 3.5}
	decoded, err := DecodePCM(nil, EncodePCM(nil, samples))
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}

	empty, err := DecodePCM(nil, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty payload to decode to nothing, got %v %v", empty, err)
	}
}

func TestDecodePCMRejectsPartialSample(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 1023} {
		_, err := DecodePCM(nil, make([]byte, n))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%d bytes: expected ErrMalformed, got %v", n, err)
		}
	}
}
