package audio

import (
	"testing"
	"time"
)

func TestNewBuffer(t *testing.T) {
	buf := NewBuffer(2, 1000, 44100)

	if buf.NumChannels() != 2 {
		t.Errorf("NumChannels = %d, want 2", buf.NumChannels())
	}
	if buf.NumSamples() != 1000 {
		t.Errorf("NumSamples = %d, want 1000", buf.NumSamples())
	}
	if err := buf.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDuration(t *testing.T) {
	buf := NewBuffer(1, 44100, 44100)
	if got := buf.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}

	half := NewBuffer(2, 22050, 44100)
	if got := half.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}

	broken := &Buffer{Channels: [][]float64{{1, 2, 3}}}
	if got := broken.Duration(); got != 0 {
		t.Errorf("Duration without sample rate = %v, want 0", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	buf := NewBuffer(2, 4, 8000)
	buf.Channels[0][0] = 0.5

	clone := buf.Clone()
	clone.Channels[0][0] = -0.5

	if buf.Channels[0][0] != 0.5 {
		t.Error("mutating the clone changed the original")
	}
	if clone.SampleRate != buf.SampleRate {
		t.Errorf("clone SampleRate = %d, want %d", clone.SampleRate, buf.SampleRate)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		buf  *Buffer
	}{
		{"zero sample rate", &Buffer{Channels: [][]float64{{0}}}},
		{"no channels", &Buffer{SampleRate: 8000}},
		{"uneven channels", &Buffer{
			SampleRate: 8000,
			Channels:   [][]float64{{0, 0, 0}, {0, 0}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.buf.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
