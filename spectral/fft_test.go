package spectral

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	dspfft "github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// TestFFTImpulse verifies that a unit impulse transforms to a flat
// spectrum: every bin has magnitude 1.
func TestFFTImpulse(t *testing.T) {
	for _, n := range []int{2, 8, 64, 1024} {
		re := make([]float64, n)
		im := make([]float64, n)
		re[0] = 1

		FFT(re, im)

		for i := 0; i < n; i++ {
			mag := math.Hypot(re[i], im[i])
			if math.Abs(mag-1) > 1e-12 {
				t.Errorf("n=%d bin %d: magnitude = %v, want 1", n, i, mag)
			}
		}
	}
}

// TestFFTSinusoid verifies that a pure sinusoid at bin k concentrates
// its energy at bins k and N-k.
func TestFFTSinusoid(t *testing.T) {
	const n = 256
	const k = 17

	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		re[i] = math.Sin(2 * math.Pi * float64(k) * float64(i) / float64(n))
	}

	FFT(re, im)

	for i := 0; i < n; i++ {
		mag := math.Hypot(re[i], im[i])
		if i == k || i == n-k {
			if math.Abs(mag-float64(n)/2) > 1e-8 {
				t.Errorf("bin %d: magnitude = %v, want %v", i, mag, float64(n)/2)
			}
		} else if mag > 1e-8 {
			t.Errorf("bin %d: magnitude = %v, want ~0", i, mag)
		}
	}
}

// TestFFTMatchesReferences cross-checks the in-place transform against
// gonum's real FFT and go-dsp's FFTReal on random input.
func TestFFTMatchesReferences(t *testing.T) {
	const n = 512
	rng := rand.New(rand.NewSource(42))

	signal := make([]float64, n)
	for i := range signal {
		signal[i] = rng.Float64()*2 - 1
	}

	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, signal)
	FFT(re, im)

	gonumCoeffs := fourier.NewFFT(n).Coefficients(nil, signal)
	for i := range gonumCoeffs {
		if math.Abs(re[i]-real(gonumCoeffs[i])) > 1e-8 || math.Abs(im[i]-imag(gonumCoeffs[i])) > 1e-8 {
			t.Fatalf("gonum mismatch at bin %d: got (%v, %v), want %v", i, re[i], im[i], gonumCoeffs[i])
		}
	}

	dspCoeffs := dspfft.FFTReal(signal)
	for i := range dspCoeffs {
		if cmplx.Abs(complex(re[i], im[i])-dspCoeffs[i]) > 1e-8 {
			t.Fatalf("go-dsp mismatch at bin %d: got (%v, %v), want %v", i, re[i], im[i], dspCoeffs[i])
		}
	}
}

// TestInverseFFTRoundTrip verifies forward + inverse recovers the input.
func TestInverseFFTRoundTrip(t *testing.T) {
	const n = 1024
	rng := rand.New(rand.NewSource(7))

	orig := make([]float64, n)
	for i := range orig {
		orig[i] = rng.Float64()*2 - 1
	}

	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, orig)

	FFT(re, im)
	InverseFFT(re, im)

	for i := 0; i < n; i++ {
		if math.Abs(re[i]-orig[i]) > 1e-4 {
			t.Fatalf("sample %d: got %v, want %v", i, re[i], orig[i])
		}
		if math.Abs(im[i]) > 1e-4 {
			t.Fatalf("sample %d: imaginary residue %v", i, im[i])
		}
	}
}

func TestFFTTinyInputsAreNoOps(t *testing.T) {
	FFT(nil, nil)
	FFT([]float64{3}, []float64{0})

	re := []float64{3}
	im := []float64{0}
	FFT(re, im)
	if re[0] != 3 || im[0] != 0 {
		t.Errorf("length-1 FFT modified input: (%v, %v)", re[0], im[0])
	}
}

func TestMagnitudeSpectrum(t *testing.T) {
	const n = 128

	frame := make([]float64, n)
	for i := range frame {
		frame[i] = math.Cos(2 * math.Pi * 5 * float64(i) / float64(n))
	}

	mags, err := MagnitudeSpectrum(frame)
	if err != nil {
		t.Fatalf("MagnitudeSpectrum: %v", err)
	}
	if len(mags) != n/2 {
		t.Fatalf("got %d bins, want %d", len(mags), n/2)
	}
	for i, m := range mags {
		if m < 0 {
			t.Errorf("bin %d: negative magnitude %v", i, m)
		}
	}

	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	if peak != 5 {
		t.Errorf("peak at bin %d, want 5", peak)
	}
}

func TestMagnitudeSpectrumRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := MagnitudeSpectrum(make([]float64, 100)); err == nil {
		t.Error("expected error for length 100")
	}

	mags, err := MagnitudeSpectrum(nil)
	if err != nil || len(mags) != 0 {
		t.Errorf("empty frame: got (%v, %v), want empty result", mags, err)
	}
}
