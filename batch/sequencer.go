package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/wavebatch/wavebatch/logging"
)

// ErrAborted marks a run stopped by cancellation, as opposed to an
// ordinary per-file failure.
var ErrAborted = errors.New("processing aborted")

// abortedMessage is what consumers see on the in-flight file when a run
// is cancelled.
const abortedMessage = "Processing aborted"

// Sequencer drives a batch of files through the enabled pipeline steps,
// one file at a time, emitting a progress update for every state change.
type Sequencer struct {
	runner Runner
	logger logging.Logger
}

// NewSequencer creates a sequencer around a step runner. A nil runner
// falls back to a SimulatedRunner, which only advances progress.
func NewSequencer(runner Runner) *Sequencer {
	if runner == nil {
		runner = &SimulatedRunner{}
	}
	return &Sequencer{
		runner: runner,
		logger: logging.WithFields(logging.Fields{
			"component": "batch_sequencer",
		}),
	}
}

// ProcessBatch starts a run and returns its progress stream. The stream
// is finite and closed when the run ends; a Sequencer run is not
// restartable - start a new one for a new batch.
//
// Files are processed strictly in order, never concurrently, so no two
// files are ever running at the same time. Each enabled step of each file
// is one unit of work; with zero enabled steps each file still counts as
// one placeholder unit so progress stays meaningful. Updates are emitted
// before and after every unit, always carrying defensive copies.
//
// Cancellation via ctx is cooperative: it is checked at the start of each
// file and before each step. When it fires mid-file, that file is marked
// failed with "Processing aborted" and the whole run stops; files not yet
// started stay queued. Any other per-file error marks only that file
// failed and the run continues.
//
// The producer blocks on each emission until the consumer receives it, so
// callers must drain the channel until it is closed.
func (s *Sequencer) ProcessBatch(ctx context.Context, files []FileRef, opts Options) (<-chan ProgressUpdate, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f.ID == "" {
			return nil, fmt.Errorf("file %q has an empty ID", f.Name)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("duplicate file ID %q", f.ID)
		}
		seen[f.ID] = true
	}

	updates := make(chan ProgressUpdate)
	go s.run(ctx, files, opts, updates)
	return updates, nil
}

func (s *Sequencer) run(ctx context.Context, files []FileRef, opts Options, updates chan<- ProgressUpdate) {
	defer close(updates)

	steps := opts.EnabledSteps()
	totalUnits := len(files) * max(len(steps), 1)
	completedUnits := 0

	states := make(map[string]*FileState, len(files))
	for _, f := range files {
		states[f.ID] = &FileState{ID: f.ID, Name: f.Name, Status: StatusQueued}
	}

	emit := func(st *FileState) {
		updates <- ProgressUpdate{
			File:      *st,
			Aggregate: BuildAggregate(states, completedUnits, totalUnits),
		}
	}

	s.logger.Info("batch run started", logging.Fields{
		"files":       len(files),
		"steps":       len(steps),
		"total_units": totalUnits,
	})

	for _, ref := range files {
		// Cancellation before a file starts leaves it queued and ends
		// the run; only an in-flight file gets marked failed.
		if ctx.Err() != nil {
			s.logger.Warn("batch run aborted before file start", logging.Fields{
				"file": ref.Name,
			})
			return
		}

		st := states[ref.ID]
		st.Status = StatusRunning
		if len(steps) > 0 {
			st.Step = steps[0]
		}
		emit(st)

		if len(steps) == 0 {
			// No-op pipeline: the file's single placeholder unit.
			completedUnits++
			st.Status = StatusSuccess
			st.Step = ""
			emit(st)
			continue
		}

		completeUnit := func() { completedUnits++ }
		unitsDone, err := s.processFile(ctx, ref, opts, steps, st, emit, completeUnit)

		if err != nil {
			s.runner.Discard(ref)

			if isAbort(err) {
				st.Status = StatusFailed
				st.Step = ""
				st.Message = abortedMessage
				emit(st)
				s.logger.Warn("batch run aborted", logging.Fields{
					"file": ref.Name,
				})
				return
			}

			// Failure isolation: account the file's remaining units so
			// the run can still reach 100%, record the failure, move on.
			completedUnits += len(steps) - unitsDone
			st.Status = StatusFailed
			st.Step = ""
			st.Message = failureMessage(err)
			emit(st)
			s.logger.Error(err, "file processing failed", logging.Fields{
				"file": ref.Name,
			})
			continue
		}

		st.Status = StatusSuccess
		st.Step = ""
		st.Message = ""
		emit(st)
	}

	s.logger.Info("batch run finished", logging.Fields{
		"completed_units": completedUnits,
		"total_units":     totalUnits,
	})
}

// processFile walks one file through the enabled steps, emitting before
// and after each unit of work. completeUnit advances the run-level unit
// counter so the post-unit emission already reflects the finished unit;
// the returned count is what this file contributed.
func (s *Sequencer) processFile(ctx context.Context, ref FileRef, opts Options, steps []Step, st *FileState, emit func(*FileState), completeUnit func()) (int, error) {
	unitsDone := 0

	for _, step := range steps {
		if ctx.Err() != nil {
			return unitsDone, ErrAborted
		}

		st.Step = step
		emit(st)

		if err := s.runner.Run(ctx, ref, opts, step); err != nil {
			if isAbort(err) {
				return unitsDone, ErrAborted
			}
			return unitsDone, fmt.Errorf("step %s: %w", step, err)
		}

		unitsDone++
		completeUnit()
		emit(st)
	}

	if err := s.runner.Finish(ctx, ref, opts); err != nil {
		if isAbort(err) {
			return unitsDone, ErrAborted
		}
		return unitsDone, fmt.Errorf("finalize: %w", err)
	}
	return unitsDone, nil
}

func isAbort(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Processing failed"
	}
	return err.Error()
}
