package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/wavebatch/wavebatch/audio"
	"github.com/wavebatch/wavebatch/logging"
)

// Format enumerates the container formats the encoder can produce.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatWAV, FormatMP3, FormatFLAC, FormatOGG:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format %q (want wav, mp3, flac or ogg)", s)
}

// Config holds the external tool configuration shared by the decoder and
// encoder.
type Config struct {
	FFmpegPath  string        `json:"ffmpeg_path"`
	FFprobePath string        `json:"ffprobe_path"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig assumes ffmpeg and ffprobe are on PATH.
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     2 * time.Minute,
	}
}

// FileInfo holds the properties ffprobe reports for an audio file.
type FileInfo struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
}

// Decoder turns audio files of any format ffmpeg understands into PCM
// buffers. Decoding shells out to the ffmpeg binary; nothing in this
// package parses codec bitstreams itself.
type Decoder struct {
	config *Config
	logger logging.Logger
}

// NewDecoder creates a decoder. A nil config uses DefaultConfig.
func NewDecoder(config *Config) *Decoder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "decoder",
		}),
	}
}

// Probe reads stream properties without decoding.
func (d *Decoder) Probe(ctx context.Context, path string) (*FileInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.config.FFprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels,codec_name",
		"-show_entries", "format=duration",
		"-of", "json",
		path)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe struct {
		Streams []struct {
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			CodecName  string `json:"codec_name"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%s has no audio stream", path)
	}

	info := &FileInfo{
		Channels: probe.Streams[0].Channels,
		Codec:    probe.Streams[0].CodecName,
	}
	info.SampleRate, _ = strconv.Atoi(probe.Streams[0].SampleRate)
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)

	if info.SampleRate <= 0 || info.Channels <= 0 {
		return nil, fmt.Errorf("%s: implausible stream properties (rate=%d channels=%d)",
			path, info.SampleRate, info.Channels)
	}
	return info, nil
}

// DecodeFile decodes a file at its native sample rate and channel layout.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*audio.Buffer, error) {
	logger := d.logger.WithFields(logging.Fields{"path": path})

	info, err := d.Probe(ctx, path)
	if err != nil {
		logger.Error(err, "probe failed")
		return nil, err
	}

	logger.Debug("decoding file", logging.Fields{
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
		"codec":       info.Codec,
		"duration":    info.Duration,
	})

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath,
		"-v", "error",
		"-i", path,
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(info.Channels),
		"-ar", strconv.Itoa(info.SampleRate),
		"pipe:1")

	raw, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffmpeg decode %s: %w, stderr: %s", path, err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	buf, err := deinterleave(raw, info.Channels, info.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	logger.Debug("decode complete", logging.Fields{
		"samples": buf.NumSamples(),
	})
	return buf, nil
}

// deinterleave splits raw little-endian float64 frames into per-channel
// sample slices.
func deinterleave(raw []byte, channels, sampleRate int) (*audio.Buffer, error) {
	if len(raw)%(8*channels) != 0 {
		return nil, fmt.Errorf("raw PCM length %d is not a whole number of %d-channel frames", len(raw), channels)
	}

	numSamples := len(raw) / (8 * channels)
	buf := audio.NewBuffer(channels, numSamples, sampleRate)

	offset := 0
	for i := 0; i < numSamples; i++ {
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint64(raw[offset:])
			buf.Channels[c][i] = math.Float64frombits(bits)
			offset += 8
		}
	}
	return buf, nil
}
