package batch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavebatch/wavebatch/audio"
	"github.com/wavebatch/wavebatch/regions"
	"github.com/wavebatch/wavebatch/transcode"
)

func TestSimulatedRunnerDelay(t *testing.T) {
	r := &SimulatedRunner{StepDelay: 20 * time.Millisecond}
	file := FileRef{ID: "x", Name: "x.wav"}

	start := time.Now()
	if err := r.Run(context.Background(), file, DefaultOptions(), StepMono); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Run returned after %v, want >= 20ms", elapsed)
	}
}

func TestSimulatedRunnerCancellation(t *testing.T) {
	r := &SimulatedRunner{StepDelay: time.Minute}
	file := FileRef{ID: "x", Name: "x.wav"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := r.Run(ctx, file, DefaultOptions(), StepMono)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run did not wake early on cancellation")
	}
}

func TestSimulatedRunnerFailFiles(t *testing.T) {
	cause := errors.New("disk on fire")
	r := &SimulatedRunner{
		StepDelay: time.Millisecond,
		FailFiles: map[string]error{"bad": cause},
	}

	if err := r.Run(context.Background(), FileRef{ID: "bad"}, DefaultOptions(), StepMono); !errors.Is(err, cause) {
		t.Errorf("Run = %v, want the configured failure", err)
	}
	if err := r.Run(context.Background(), FileRef{ID: "good"}, DefaultOptions(), StepMono); err != nil {
		t.Errorf("Run = %v, want nil for an unlisted file", err)
	}
}

// stereoRamp builds a small two-channel working buffer for transform
// tests; no decoding is involved.
func stereoRamp(samples, rate int) *audio.Buffer {
	buf := audio.NewBuffer(2, samples, rate)
	for i := 0; i < samples; i++ {
		buf.Channels[0][i] = 0.5 * float64(i) / float64(samples)
		buf.Channels[1][i] = -0.25 * float64(i) / float64(samples)
	}
	return buf
}

func newTestTransformRunner(t *testing.T, store *regions.Store) (*TransformRunner, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := NewTransformRunner(nil, store, dir)
	if err != nil {
		t.Fatalf("NewTransformRunner: %v", err)
	}
	return r, dir
}

func TestTransformRunnerSteps(t *testing.T) {
	r, dir := newTestTransformRunner(t, nil)
	ctx := context.Background()

	file := FileRef{ID: "clip", Name: "clip.wav", Path: "/nonexistent/clip.wav"}
	r.working[file.ID] = &workingFile{
		buf:    stereoRamp(8000, 4000), // 2 seconds
		format: transcode.FormatWAV,
	}

	opts := DefaultOptions()
	opts.Resample.TargetRate = 8000
	opts.Mono.Enabled = true
	opts.Trim.Mode = TrimModeGlobal
	opts.Trim.Start = 0
	opts.Trim.End = 1

	if err := r.Run(ctx, file, opts, StepResample); err != nil {
		t.Fatalf("resample: %v", err)
	}
	if got := r.working[file.ID].buf.SampleRate; got != 8000 {
		t.Errorf("SampleRate = %d, want 8000", got)
	}

	if err := r.Run(ctx, file, opts, StepMono); err != nil {
		t.Fatalf("mono: %v", err)
	}
	if got := r.working[file.ID].buf.NumChannels(); got != 1 {
		t.Errorf("NumChannels = %d, want 1", got)
	}

	if err := r.Run(ctx, file, opts, StepNormalize); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	peak := 0.0
	for _, v := range r.working[file.ID].buf.Channels[0] {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	want := math.Pow(10, opts.Normalize.TargetPeakDB/20)
	if math.Abs(peak-want) > 1e-9 {
		t.Errorf("peak after normalize = %v, want %v", peak, want)
	}

	if err := r.Run(ctx, file, opts, StepTrim); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if got := r.working[file.ID].buf.NumSamples(); got != 8000 {
		t.Errorf("NumSamples after 1s trim at 8 kHz = %d, want 8000", got)
	}

	opts.Convert.Format = transcode.FormatWAV
	if err := r.Run(ctx, file, opts, StepConvert); err != nil {
		t.Fatalf("convert: %v", err)
	}

	if err := r.Finish(ctx, file, opts); err != nil {
		t.Fatalf("finish: %v", err)
	}
	outPath := filepath.Join(dir, "clip.wav")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if _, ok := r.working[file.ID]; ok {
		t.Error("working state survived Finish")
	}
}

func TestTransformRunnerStoredTrim(t *testing.T) {
	store, err := regions.Open(t.TempDir())
	if err != nil {
		t.Fatalf("regions.Open: %v", err)
	}
	defer store.Close()

	r, _ := newTestTransformRunner(t, store)
	ctx := context.Background()

	opts := DefaultOptions()
	opts.Trim.Enabled = true
	opts.Trim.Mode = TrimModeStored

	// A file without a stored region passes through untouched.
	plain := FileRef{ID: "plain", Name: "plain.wav"}
	r.working[plain.ID] = &workingFile{buf: stereoRamp(8000, 4000), format: transcode.FormatWAV}
	if err := r.Run(ctx, plain, opts, StepTrim); err != nil {
		t.Fatalf("trim without region: %v", err)
	}
	if got := r.working[plain.ID].buf.NumSamples(); got != 8000 {
		t.Errorf("untrimmed NumSamples = %d, want 8000", got)
	}

	// A stored region gets applied.
	marked := FileRef{ID: "marked", Name: "marked.wav"}
	if err := store.SetTrim(marked.ID, regions.Region{Start: 0.5, End: 1.0}); err != nil {
		t.Fatalf("SetTrim: %v", err)
	}
	r.working[marked.ID] = &workingFile{buf: stereoRamp(8000, 4000), format: transcode.FormatWAV}
	if err := r.Run(ctx, marked, opts, StepTrim); err != nil {
		t.Fatalf("trim with region: %v", err)
	}
	if got := r.working[marked.ID].buf.NumSamples(); got != 2000 {
		t.Errorf("trimmed NumSamples = %d, want 2000", got)
	}
}

func TestTransformRunnerStoredTrimNeedsStore(t *testing.T) {
	r, _ := newTestTransformRunner(t, nil)

	opts := DefaultOptions()
	opts.Trim.Enabled = true
	opts.Trim.Mode = TrimModeStored

	file := FileRef{ID: "x", Name: "x.wav"}
	r.working[file.ID] = &workingFile{buf: stereoRamp(100, 4000), format: transcode.FormatWAV}

	if err := r.Run(context.Background(), file, opts, StepTrim); err == nil {
		t.Error("expected an error for stored trim without a store")
	}
}

func TestTransformRunnerDiscard(t *testing.T) {
	r, dir := newTestTransformRunner(t, nil)

	file := FileRef{ID: "x", Name: "x.wav"}
	r.working[file.ID] = &workingFile{buf: stereoRamp(100, 4000), format: transcode.FormatWAV}

	r.Discard(file)
	if _, ok := r.working[file.ID]; ok {
		t.Fatal("working state survived Discard")
	}

	// Finish after Discard is a no-op: nothing written, no error.
	if err := r.Finish(context.Background(), file, DefaultOptions()); err != nil {
		t.Fatalf("Finish after Discard: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x.wav")); !os.IsNotExist(err) {
		t.Error("Finish after Discard wrote an output file")
	}
}
