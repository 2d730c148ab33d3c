package audio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Trim returns the slice of the buffer between start and end, both in
// seconds from the beginning of the clip. The range is clamped to the
// buffer; an inverted range is an error.
func Trim(buf *Buffer, start, end float64) (*Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if end > buf.Duration().Seconds() {
		end = buf.Duration().Seconds()
	}
	if start >= end {
		return nil, fmt.Errorf("trim range is empty: start %.3fs >= end %.3fs", start, end)
	}

	startIdx := int(start * float64(buf.SampleRate))
	endIdx := int(end * float64(buf.SampleRate))
	if endIdx > buf.NumSamples() {
		endIdx = buf.NumSamples()
	}

	out := NewBuffer(buf.NumChannels(), endIdx-startIdx, buf.SampleRate)
	for i, ch := range buf.Channels {
		copy(out.Channels[i], ch[startIdx:endIdx])
	}
	return out, nil
}

// Resample converts the buffer to a new sample rate using linear
// interpolation per channel.
func Resample(buf *Buffer, targetRate int) (*Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", targetRate)
	}
	if targetRate == buf.SampleRate {
		return buf.Clone(), nil
	}

	srcLen := buf.NumSamples()
	dstLen := int(math.Round(float64(srcLen) * float64(targetRate) / float64(buf.SampleRate)))
	out := NewBuffer(buf.NumChannels(), dstLen, targetRate)

	ratio := float64(buf.SampleRate) / float64(targetRate)
	for c, ch := range buf.Channels {
		dst := out.Channels[c]
		for i := range dst {
			pos := float64(i) * ratio
			lo := int(pos)
			if lo >= srcLen-1 {
				dst[i] = ch[srcLen-1]
				continue
			}
			frac := pos - float64(lo)
			dst[i] = ch[lo]*(1-frac) + ch[lo+1]*frac
		}
	}
	return out, nil
}

// ToMono down-mixes all channels by averaging them into a single channel.
// A buffer that is already mono is copied unchanged.
func ToMono(buf *Buffer) (*Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if buf.NumChannels() == 1 {
		return buf.Clone(), nil
	}

	out := NewBuffer(1, buf.NumSamples(), buf.SampleRate)
	mono := out.Channels[0]
	for _, ch := range buf.Channels {
		floats.Add(mono, ch)
	}
	floats.Scale(1.0/float64(buf.NumChannels()), mono)
	return out, nil
}

// Normalize scales the buffer so its absolute peak across all channels
// sits at targetPeakDB (dBFS, <= 0). A silent buffer is returned
// unchanged since there is no peak to scale against.
func Normalize(buf *Buffer, targetPeakDB float64) (*Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if targetPeakDB > 0 {
		return nil, fmt.Errorf("target peak must be <= 0 dBFS, got %.2f", targetPeakDB)
	}

	peak := 0.0
	for _, ch := range buf.Channels {
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	if peak < 1e-10 {
		return buf.Clone(), nil
	}

	targetLinear := math.Pow(10.0, targetPeakDB/20.0)
	gain := targetLinear / peak

	out := buf.Clone()
	for _, ch := range out.Channels {
		floats.Scale(gain, ch)
	}
	return out, nil
}

// MixToMonoSamples is a convenience for analysis paths that only need a
// single sample sequence: it returns the averaged channel data without
// the Buffer wrapper.
func MixToMonoSamples(buf *Buffer) []float64 {
	if buf.NumChannels() == 0 {
		return nil
	}
	if buf.NumChannels() == 1 {
		out := make([]float64, len(buf.Channels[0]))
		copy(out, buf.Channels[0])
		return out
	}
	mono := make([]float64, buf.NumSamples())
	for _, ch := range buf.Channels {
		floats.Add(mono, ch)
	}
	floats.Scale(1.0/float64(buf.NumChannels()), mono)
	return mono
}
