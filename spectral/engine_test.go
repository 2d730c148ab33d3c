package spectral

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEngineAnalyzeMatchesGenerate(t *testing.T) {
	engine := NewEngine(2)
	defer engine.Close()

	signal := sine(30000, 440, 44100)

	want, err := Generate(signal, 44100, 1024, 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	got, err := engine.Analyze(context.Background(), Request{
		Signal:       signal,
		SampleRate:   44100,
		FFTSize:      1024,
		TargetFrames: 32,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got.NumFrames != want.NumFrames || got.NumBins != want.NumBins || got.HopSize != want.HopSize {
		t.Fatalf("layout mismatch: got (%d, %d, %d), want (%d, %d, %d)",
			got.NumFrames, got.NumBins, got.HopSize, want.NumFrames, want.NumBins, want.HopSize)
	}
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("Data[%d] = %v, want %v", i, got.Data[i], want.Data[i])
		}
	}
}

func TestEngineAnalyzePropagatesErrors(t *testing.T) {
	engine := NewEngine(1)
	defer engine.Close()

	_, err := engine.Analyze(context.Background(), Request{
		Signal:       sine(4096, 440, 8000),
		SampleRate:   8000,
		FFTSize:      1000, // not a power of two
		TargetFrames: 32,
	})
	if err == nil {
		t.Fatal("expected an error for a bad FFT size")
	}
}

func TestEngineAnalyzeHonorsCancellation(t *testing.T) {
	// No workers: submission can never succeed, so a cancelled context is
	// the only way out.
	engine := &Engine{jobs: make(chan engineJob)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Analyze(ctx, Request{
		Signal:       sine(4096, 440, 8000),
		SampleRate:   8000,
		FFTSize:      1024,
		TargetFrames: 8,
	})
	if err == nil {
		t.Fatal("expected a context error")
	}
}

func TestEngineConcurrentAnalyze(t *testing.T) {
	engine := NewEngine(4)
	defer engine.Close()

	signal := sine(20000, 880, 44100)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for j := 0; j < 16; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Analyze(context.Background(), Request{
				Signal:       signal,
				SampleRate:   44100,
				FFTSize:      512,
				TargetFrames: 16,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	engine := NewEngine(1)

	done := make(chan struct{})
	go func() {
		engine.Close()
		engine.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}
