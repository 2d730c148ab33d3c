package spectral

import (
	"fmt"
	"math"

	"github.com/wavebatch/wavebatch/windowing"
)

// MinHopSize is the floor on the stride between frame start positions.
// Very short clips would otherwise explode into thousands of overlapping
// frames when the caller asks for a high target frame count.
const MinHopSize = 256

// Frames is a flattened, frame-major spectrogram: the magnitudes for frame
// f occupy Data[f*NumBins : (f+1)*NumBins]. After generation the values
// are globally log-normalized so the loudest bin in the whole clip maps
// to 1.0; a silent clip stays all-zero.
type Frames struct {
	Data       []float64 `json:"data"`
	NumFrames  int       `json:"num_frames"`
	NumBins    int       `json:"num_bins"`
	HopSize    int       `json:"hop_size"`
	FFTSize    int       `json:"fft_size"`
	SampleRate int       `json:"sample_rate"`
}

// FrameDuration returns the time spacing between consecutive frames.
func (f *Frames) FrameDuration() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(f.HopSize) / float64(f.SampleRate)
}

// Generate computes a spectrogram of a mono signal.
//
// The hop size is derived from the requested frame count,
// hop = max(MinHopSize, (len(signal)-fftSize)/targetFrames), and the
// resulting frame count is (len(signal)-fftSize)/hop. A signal shorter
// than fftSize yields zero frames and empty data; callers must handle the
// empty case rather than expecting an error.
//
// Each frame is multiplied by a precomputed periodic Hann window before
// the transform. Magnitudes are accumulated raw while tracking the global
// maximum, then a second pass rescales every value in place with
// log10(1 + x*(9/max)), anchoring the global peak at exactly 1.
//
// Generate shares no state between calls and touches nothing but its own
// allocations, so it is safe to run on any worker goroutine and hand the
// result buffer over to the caller.
func Generate(signal []float64, sampleRate, fftSize, targetFrames int) (*Frames, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if fftSize < 2 || !isPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of two >= 2, got %d", fftSize)
	}
	if targetFrames <= 0 {
		return nil, fmt.Errorf("target frame count must be positive, got %d", targetFrames)
	}

	numBins := fftSize / 2

	span := len(signal) - fftSize
	if span < 0 {
		// Clip shorter than a single frame.
		return &Frames{
			Data:       []float64{},
			NumBins:    numBins,
			FFTSize:    fftSize,
			SampleRate: sampleRate,
		}, nil
	}

	hopSize := max(MinHopSize, span/targetFrames)
	numFrames := span / hopSize

	frames := &Frames{
		Data:       make([]float64, numFrames*numBins),
		NumFrames:  numFrames,
		NumBins:    numBins,
		HopSize:    hopSize,
		FFTSize:    fftSize,
		SampleRate: sampleRate,
	}
	if numFrames == 0 {
		return frames, nil
	}

	window := windowing.NewHann(fftSize, false)
	coeffs := window.Coefficients()

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)

	maxMag := 0.0
	for f := 0; f < numFrames; f++ {
		start := f * hopSize
		for i := 0; i < fftSize; i++ {
			idx := start + i
			if idx < len(signal) {
				re[i] = signal[idx] * coeffs[i]
			} else {
				re[i] = 0
			}
			im[i] = 0
		}

		FFT(re, im)

		out := frames.Data[f*numBins : (f+1)*numBins]
		for i := range out {
			mag := math.Sqrt(re[i]*re[i] + im[i]*im[i])
			out[i] = mag
			if mag > maxMag {
				maxMag = mag
			}
		}
	}

	// Global log normalization against the true peak across all frames,
	// not per-frame, so relative loudness over time survives.
	if maxMag > 0 {
		scale := 9.0 / maxMag
		for i, v := range frames.Data {
			frames.Data[i] = math.Log10(1 + v*scale)
		}
	}

	return frames, nil
}
