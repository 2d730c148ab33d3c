package spectral

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/wavebatch/wavebatch/logging"
)

// Request describes one spectrogram computation. The signal slice is
// handed to the engine for the duration of the request and must not be
// mutated by the caller until Analyze returns.
type Request struct {
	Signal       []float64
	SampleRate   int
	FFTSize      int
	TargetFrames int
}

// Engine dispatches spectrogram requests to a fixed pool of worker
// goroutines so FFT-heavy work never runs on the caller's goroutine.
// Each worker handles one request at a time; the result buffer is
// allocated inside the worker and handed over with the response, so no
// memory is ever shared between a worker and a caller.
type Engine struct {
	jobs      chan engineJob
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    logging.Logger
}

type engineJob struct {
	req  Request
	resp chan engineResult
}

type engineResult struct {
	frames *Frames
	err    error
}

// NewEngine starts an engine with the given number of workers.
// workers <= 0 uses one worker per CPU.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	e := &Engine{
		jobs: make(chan engineJob),
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_engine",
		}),
	}

	for w := 0; w < workers; w++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()

	for job := range e.jobs {
		frames, err := Generate(job.req.Signal, job.req.SampleRate, job.req.FFTSize, job.req.TargetFrames)
		if err != nil {
			e.logger.Error(err, "spectrogram generation failed", logging.Fields{
				"fft_size":      job.req.FFTSize,
				"target_frames": job.req.TargetFrames,
			})
		}
		job.resp <- engineResult{frames: frames, err: err}
	}
}

// Analyze submits a request and blocks until a worker finishes it or ctx
// is done. A context error leaves the request to be drained by the worker
// pool; the caller simply stops waiting.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Frames, error) {
	resp := make(chan engineResult, 1)

	select {
	case e.jobs <- engineJob{req: req, resp: resp}:
	case <-ctx.Done():
		return nil, fmt.Errorf("spectral analysis not started: %w", ctx.Err())
	}

	select {
	case res := <-resp:
		return res.frames, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("spectral analysis abandoned: %w", ctx.Err())
	}
}

// Close stops accepting requests and waits for in-flight work to finish.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.jobs)
	})
	e.wg.Wait()
}
