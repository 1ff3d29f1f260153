package transport

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// SampleSize is the byte width of one encoded sample.
const SampleSize = 4

// ErrMalformed is returned for payloads whose length is not a whole number of samples.
var ErrMalformed = errors.New("payload length is not a multiple of the sample size")

// EncodePCM writes samples as headerless little-endian float32 into dst, reusing
// its storage when large enough.
func EncodePCM(dst []byte, samples []float32) []byte {
	n := len(samples) * SampleSize
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*SampleSize:], math.Float32bits(s))
	}
	return dst
}

// DecodePCM is the inverse of EncodePCM.
func DecodePCM(dst []float32, payload []byte) ([]float32, error) {
	if len(payload)%SampleSize != 0 {
		return dst[:0], ErrMalformed
	}
	n := len(payload) / SampleSize
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*SampleSize:]))
	}
	return dst, nil
}
