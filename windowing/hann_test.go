package windowing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/dsp/window"
)

func TestPeriodicHannCoefficients(t *testing.T) {
	const n = 1024
	h := NewHann(n, false)
	coeffs := h.Coefficients()

	if len(coeffs) != n {
		t.Fatalf("got %d coefficients, want %d", len(coeffs), n)
	}
	if coeffs[0] != 0 {
		t.Errorf("coefficient 0 = %v, want 0", coeffs[0])
	}
	if math.Abs(coeffs[n/2]-1) > 1e-12 {
		t.Errorf("midpoint = %v, want 1", coeffs[n/2])
	}
	for i, c := range coeffs {
		want := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
		if math.Abs(c-want) > 1e-12 {
			t.Fatalf("coefficient %d = %v, want %v", i, c, want)
		}
	}
}

// TestSymmetricHannMatchesGonum cross-checks the symmetric variant against
// gonum's window table.
func TestSymmetricHannMatchesGonum(t *testing.T) {
	const n = 513
	h := NewHann(n, true)

	ref := make([]float64, n)
	for i := range ref {
		ref[i] = 1
	}
	window.Hann(ref)

	for i, c := range h.Coefficients() {
		if math.Abs(c-ref[i]) > 1e-12 {
			t.Fatalf("coefficient %d = %v, gonum says %v", i, c, ref[i])
		}
	}
}

func TestSymmetricHannEndpoints(t *testing.T) {
	h := NewHann(64, true)
	coeffs := h.Coefficients()
	if coeffs[0] != 0 || math.Abs(coeffs[63]) > 1e-12 {
		t.Errorf("endpoints = (%v, %v), want both 0", coeffs[0], coeffs[63])
	}
}

func TestApply(t *testing.T) {
	h := NewHann(8, false)

	signal := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	windowed := h.Apply(signal)
	if windowed == nil {
		t.Fatal("Apply returned nil for a matching length")
	}
	for i, v := range windowed {
		if v != h.Coefficients()[i] {
			t.Fatalf("windowed[%d] = %v, want %v", i, v, h.Coefficients()[i])
		}
	}
	for _, v := range signal {
		if v != 1 {
			t.Fatal("Apply mutated its input")
		}
	}

	if h.Apply([]float64{1, 2, 3}) != nil {
		t.Error("Apply accepted a mismatched length")
	}
}

func TestApplyInPlace(t *testing.T) {
	h := NewHann(8, false)

	signal := []float64{2, 2, 2, 2, 2, 2, 2, 2}
	if err := h.ApplyInPlace(signal); err != nil {
		t.Fatalf("ApplyInPlace: %v", err)
	}
	for i, v := range signal {
		if math.Abs(v-2*h.Coefficients()[i]) > 1e-12 {
			t.Fatalf("signal[%d] = %v, want %v", i, v, 2*h.Coefficients()[i])
		}
	}

	if err := h.ApplyInPlace([]float64{1, 2}); err == nil {
		t.Error("ApplyInPlace accepted a mismatched length")
	}
}

func TestSize(t *testing.T) {
	if got := NewHann(256, false).Size(); got != 256 {
		t.Errorf("Size = %d, want 256", got)
	}
}
