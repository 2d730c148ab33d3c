package spectral

import (
	"fmt"
	"math"
)

// FFT computes an in-place radix-2 Cooley-Tukey transform of the complex
// sequence held in re/im. Both slices must have the same length, and that
// length must be a power of two; callers are responsible for the
// precondition (see MagnitudeSpectrum for a validated entry point).
// Lengths of 0 and 1 are no-ops.
//
// The transform runs in two phases: a bit-reversal permutation using the
// increment-carry trick, then iterative butterflies for stage sizes
// 2, 4, ... N. Twiddle factors advance by complex multiplication with a
// per-stage rotation, so the trig calls are amortized to one pair per
// stage instead of one per butterfly.
func FFT(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation. j tracks the bit-reversed counterpart of i
	// by propagating a carry from the top bit down.
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit

		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		stepRe := math.Cos(ang)
		stepIm := math.Sin(ang)

		half := length >> 1
		for start := 0; start < n; start += length {
			wRe, wIm := 1.0, 0.0
			for k := 0; k < half; k++ {
				lo := start + k
				hi := lo + half

				tRe := re[hi]*wRe - im[hi]*wIm
				tIm := re[hi]*wIm + im[hi]*wRe

				re[hi] = re[lo] - tRe
				im[hi] = im[lo] - tIm
				re[lo] += tRe
				im[lo] += tIm

				wRe, wIm = wRe*stepRe-wIm*stepIm, wRe*stepIm+wIm*stepRe
			}
		}
	}
}

// InverseFFT computes the inverse transform in place: conjugate, forward
// FFT, conjugate again, scale by 1/N. Same power-of-two precondition as
// FFT.
func InverseFFT(re, im []float64) {
	n := len(re)
	if n <= 1 {
		return
	}

	for i := range im {
		im[i] = -im[i]
	}

	FFT(re, im)

	scale := 1.0 / float64(n)
	for i := range re {
		re[i] *= scale
		im[i] = -im[i] * scale
	}
}

// MagnitudeSpectrum computes the magnitude of the positive-frequency half
// of the spectrum of a real-valued frame. The frame length must be a power
// of two. The result has length len(frame)/2 and every element is >= 0.
func MagnitudeSpectrum(frame []float64) ([]float64, error) {
	n := len(frame)
	if n == 0 {
		return []float64{}, nil
	}
	if !isPowerOfTwo(n) {
		return nil, fmt.Errorf("frame length must be a power of two, got %d", n)
	}

	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, frame)

	FFT(re, im)

	mags := make([]float64, n/2)
	for i := range mags {
		mags[i] = math.Sqrt(re[i]*re[i] + im[i]*im[i])
	}

	return mags, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
