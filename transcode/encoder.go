package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/wavebatch/wavebatch/audio"
	"github.com/wavebatch/wavebatch/logging"
)

// Encoder writes PCM buffers out as audio files. WAV is written directly
// as 16-bit PCM; mp3, flac and ogg are delegated to ffmpeg, which gets
// the raw samples on stdin.
type Encoder struct {
	config *Config
	logger logging.Logger
}

// NewEncoder creates an encoder. A nil config uses DefaultConfig.
func NewEncoder(config *Config) *Encoder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Encoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "encoder",
		}),
	}
}

// Encode writes buf to path in the given format.
func (e *Encoder) Encode(ctx context.Context, buf *audio.Buffer, format Format, path string) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	e.logger.Debug("encoding", logging.Fields{
		"path":        path,
		"format":      string(format),
		"sample_rate": buf.SampleRate,
		"channels":    buf.NumChannels(),
	})

	switch format {
	case FormatWAV:
		return e.encodeWAV(buf, path)
	case FormatMP3, FormatFLAC, FormatOGG:
		return e.encodeWithFFmpeg(ctx, buf, format, path)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func (e *Encoder) encodeWAV(buf *audio.Buffer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, buf.SampleRate, 16, buf.NumChannels(), 1)

	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buf.NumChannels(),
			SampleRate:  buf.SampleRate,
		},
		Data:           interleaveInt16(buf),
		SourceBitDepth: 16,
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav %s: %w", path, err)
	}
	return nil
}

func (e *Encoder) encodeWithFFmpeg(ctx context.Context, buf *audio.Buffer, format Format, path string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-f", "f64le",
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", strconv.Itoa(buf.NumChannels()),
		"-i", "pipe:0",
	}
	switch format {
	case FormatMP3:
		args = append(args, "-codec:a", "libmp3lame", "-qscale:a", "2")
	case FormatOGG:
		args = append(args, "-codec:a", "libvorbis")
	case FormatFLAC:
		args = append(args, "-codec:a", "flac")
	}
	args = append(args, "-y", path)

	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(interleaveFloat64(buf))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w, stderr: %s", path, err, stderr.String())
	}
	return nil
}

// interleaveInt16 converts per-channel float64 samples to interleaved
// 16-bit PCM, clamping to full scale.
func interleaveInt16(buf *audio.Buffer) []int {
	channels := buf.NumChannels()
	numSamples := buf.NumSamples()

	out := make([]int, numSamples*channels)
	for i := 0; i < numSamples; i++ {
		for c := 0; c < channels; c++ {
			v := buf.Channels[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			out[i*channels+c] = int(math.Round(v * 32767))
		}
	}
	return out
}

// interleaveFloat64 serializes per-channel samples to interleaved
// little-endian float64 frames for ffmpeg's f64le input.
func interleaveFloat64(buf *audio.Buffer) []byte {
	channels := buf.NumChannels()
	numSamples := buf.NumSamples()

	out := make([]byte, numSamples*channels*8)
	offset := 0
	for i := 0; i < numSamples; i++ {
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint64(out[offset:], math.Float64bits(buf.Channels[c][i]))
			offset += 8
		}
	}
	return out
}
