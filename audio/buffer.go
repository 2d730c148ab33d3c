package audio

import (
	"fmt"
	"time"
)

// Buffer holds decoded PCM audio: one sample slice per channel plus the
// sample rate. Buffers are treated as immutable - every transform returns
// a new Buffer and never writes through the slices of its input.
type Buffer struct {
	Channels   [][]float64 `json:"-"`
	SampleRate int         `json:"sample_rate"`
}

// NewBuffer allocates a buffer with the given channel count and length.
func NewBuffer(numChannels, numSamples, sampleRate int) *Buffer {
	channels := make([][]float64, numChannels)
	for i := range channels {
		channels[i] = make([]float64, numSamples)
	}
	return &Buffer{Channels: channels, SampleRate: sampleRate}
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// NumSamples returns the per-channel sample count.
func (b *Buffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.NumSamples()) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	channels := make([][]float64, len(b.Channels))
	for i, ch := range b.Channels {
		channels[i] = make([]float64, len(ch))
		copy(channels[i], ch)
	}
	return &Buffer{Channels: channels, SampleRate: b.SampleRate}
}

// Validate checks the buffer invariants: positive sample rate, at least
// one channel, and equal channel lengths.
func (b *Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", b.SampleRate)
	}
	if len(b.Channels) == 0 {
		return fmt.Errorf("buffer has no channels")
	}
	n := len(b.Channels[0])
	for i, ch := range b.Channels[1:] {
		if len(ch) != n {
			return fmt.Errorf("channel %d has %d samples, expected %d", i+1, len(ch), n)
		}
	}
	return nil
}
