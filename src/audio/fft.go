package audio

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// FFT is a radix-2 transform with precomputed tables for one length.
type FFT struct {
	bitReverseTable []int
	wTable          []complex128
	scratch         []complex128
}

func NewFFT(length int) (*FFT, error) {
	if length < 2 || length&(length-1) != 0 {
		return nil, errors.Errorf("FFT length must be a power of two, got %d", length)
	}
	return &FFT{
		bitReverseTable: makeBitReverseTable(length),
		wTable:          makeWTable(length),
		scratch:         make([]complex128, length),
	}, nil
}

func (fft *FFT) Len() int {
	return len(fft.wTable)
}

func makeBitReverseTable(n int) []int {
	array := make([]int, n)
	for i := 0; i < n; i++ {
		array[i] = bitReverse(i, n)
	}
	return array
}

func bitReverse(k, n int) int {
	m := 0
	for ; n > 1; n = n >> 1 {
		m = m<<1 + k&1
		k = k >> 1
	}
	return m
}

func makeWTable(n int) []complex128 {
	array := make([]complex128, n)
	w := -2.0 * math.Pi / float64(n)
	for i := 0; i < n; i++ {
		array[i] = cmplx.Exp(complex(0, w*float64(i)))
	}
	return array
}

// Calc transforms x in place. len(x) must equal Len.
func (fft *FFT) Calc(x []complex128) {
	n := len(x)
	for i := 0; i < n; i++ {
		rev := fft.bitReverseTable[i]
		if i < rev {
			x[i], x[rev] = x[rev], x[i]
		}
	}
	for m := 1; m < n; m = m << 1 {
		step := m << 1
		for k := 0; k < m; k++ {
			w := fft.wTable[n/step*k]
			for i := k; i < n; i += step {
				j := i + m
				tmp := x[j] * w
				x[j] = x[i] - tmp
				x[i] = x[i] + tmp
			}
		}
	}
}

// Magnitudes replaces x with the magnitude of its transform. Only the first
// half is meaningful for real input.
func (fft *FFT) Magnitudes(x []float64) {
	cx := fft.scratch[:len(x)]
	for i, v := range x {
		cx[i] = complex(v, 0)
	}
	fft.Calc(cx)
	for i := range x {
		x[i] = cmplx.Abs(cx[i])
	}
}
