package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wavebatch/wavebatch/audio"
	"github.com/wavebatch/wavebatch/logging"
	"github.com/wavebatch/wavebatch/regions"
	"github.com/wavebatch/wavebatch/transcode"
)

// Runner executes the per-step work of the pipeline. The sequencer calls
// Run once per (file, step) unit, Finish once after every step of a file
// succeeded, and Discard when a file is dropped mid-way (failure or
// abort).
type Runner interface {
	Run(ctx context.Context, file FileRef, opts Options, step Step) error
	Finish(ctx context.Context, file FileRef, opts Options) error
	Discard(file FileRef)
}

// DefaultStepDelay is how long a SimulatedRunner pretends each unit of
// work takes.
const DefaultStepDelay = 120 * time.Millisecond

// SimulatedRunner advances through steps on a timer without touching any
// audio. It exists for progress-UI development and for tests; real runs
// use TransformRunner.
type SimulatedRunner struct {
	// StepDelay overrides DefaultStepDelay when positive.
	StepDelay time.Duration

	// FailFiles simulates per-file failures by ID.
	FailFiles map[string]error
}

func (r *SimulatedRunner) delay() time.Duration {
	if r.StepDelay > 0 {
		return r.StepDelay
	}
	return DefaultStepDelay
}

// Run waits out the simulated step duration, waking early on
// cancellation.
func (r *SimulatedRunner) Run(ctx context.Context, file FileRef, opts Options, step Step) error {
	if err, ok := r.FailFiles[file.ID]; ok {
		return err
	}

	timer := time.NewTimer(r.delay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SimulatedRunner) Finish(ctx context.Context, file FileRef, opts Options) error {
	return nil
}

func (r *SimulatedRunner) Discard(file FileRef) {}

// workingFile is the in-flight decode state of the file currently being
// processed.
type workingFile struct {
	buf    *audio.Buffer
	format transcode.Format
}

// TransformRunner executes the real pipeline: it decodes a file on its
// first step, applies each transform to the working buffer, and encodes
// the result into OutputDir on Finish. The sequencer is strictly
// sequential, so at most one working file is live at a time, which keeps
// peak memory bounded to a single decoded buffer.
type TransformRunner struct {
	decoder   *transcode.Decoder
	encoder   *transcode.Encoder
	regions   *regions.Store
	outputDir string
	working   map[string]*workingFile
	logger    logging.Logger
}

// NewTransformRunner creates a runner writing results to outputDir.
// The region store may be nil when the stored trim mode is not used.
func NewTransformRunner(cfg *transcode.Config, store *regions.Store, outputDir string) (*TransformRunner, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	return &TransformRunner{
		decoder:   transcode.NewDecoder(cfg),
		encoder:   transcode.NewEncoder(cfg),
		regions:   store,
		outputDir: outputDir,
		working:   make(map[string]*workingFile),
		logger: logging.WithFields(logging.Fields{
			"component": "transform_runner",
		}),
	}, nil
}

func (r *TransformRunner) load(ctx context.Context, file FileRef) (*workingFile, error) {
	if w, ok := r.working[file.ID]; ok {
		return w, nil
	}

	buf, err := r.decoder.DecodeFile(ctx, file.Path)
	if err != nil {
		return nil, err
	}

	w := &workingFile{buf: buf, format: transcode.FormatWAV}
	r.working[file.ID] = w
	return w, nil
}

// Run applies one transform step to the file's working buffer.
func (r *TransformRunner) Run(ctx context.Context, file FileRef, opts Options, step Step) error {
	w, err := r.load(ctx, file)
	if err != nil {
		return err
	}

	switch step {
	case StepResample:
		w.buf, err = audio.Resample(w.buf, opts.Resample.TargetRate)
	case StepConvert:
		// The format applies at encode time; the step itself only
		// selects it.
		w.format = opts.Convert.Format
	case StepMono:
		w.buf, err = audio.ToMono(w.buf)
	case StepNormalize:
		w.buf, err = audio.Normalize(w.buf, opts.Normalize.TargetPeakDB)
	case StepTrim:
		err = r.trim(file, opts, w)
	default:
		err = fmt.Errorf("unknown step %q", step)
	}
	return err
}

func (r *TransformRunner) trim(file FileRef, opts Options, w *workingFile) error {
	switch opts.Trim.Mode {
	case TrimModeGlobal:
		trimmed, err := audio.Trim(w.buf, opts.Trim.Start, opts.Trim.End)
		if err != nil {
			return err
		}
		w.buf = trimmed
		return nil

	case TrimModeStored:
		if r.regions == nil {
			return fmt.Errorf("stored trim mode requires a region store")
		}
		region, err := r.regions.Trim(file.ID)
		if errors.Is(err, regions.ErrNotFound) {
			// Files without a stored region pass through untouched.
			return nil
		}
		if err != nil {
			return err
		}
		trimmed, err := audio.Trim(w.buf, region.Start, region.End)
		if err != nil {
			return err
		}
		w.buf = trimmed
		return nil

	default:
		return fmt.Errorf("unknown trim mode %q", opts.Trim.Mode)
	}
}

// Finish encodes the transformed buffer into the output directory and
// releases the working state.
func (r *TransformRunner) Finish(ctx context.Context, file FileRef, opts Options) error {
	w, ok := r.working[file.ID]
	if !ok {
		return nil
	}
	delete(r.working, file.ID)

	base := strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
	outPath := filepath.Join(r.outputDir, fmt.Sprintf("%s.%s", base, w.format))

	if err := r.encoder.Encode(ctx, w.buf, w.format, outPath); err != nil {
		return err
	}

	r.logger.Info("file processed", logging.Fields{
		"file":   file.Name,
		"output": outPath,
	})
	return nil
}

// Discard drops the working state of a failed or aborted file.
func (r *TransformRunner) Discard(file FileRef) {
	delete(r.working, file.ID)
}
