package audio

import (
	"math"
)

// Hann applies a periodic Hann window in place. Its coherent gain is 0.5.
func Hann(data []float64) {
	n := len(data)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		w := 0.5 - 0.5*math.Cos(2.0*math.Pi*x)
		data[i] = data[i] * w
	}
}
