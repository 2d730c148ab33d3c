package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/wavebatch/wavebatch/audio"
	"github.com/wavebatch/wavebatch/batch"
	"github.com/wavebatch/wavebatch/logging"
	"github.com/wavebatch/wavebatch/regions"
	"github.com/wavebatch/wavebatch/spectral"
	"github.com/wavebatch/wavebatch/transcode"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
}

func main() {
	log.SetFlags(0)

	mode := flag.String("mode", "", "analyze | process | region")

	// analyze / region
	file := flag.String("file", "", "input audio file")
	fftSize := flag.Int("fft", 1024, "FFT size (power of two)")
	frames := flag.Int("frames", 512, "target spectrogram frame count")
	out := flag.String("out", "", "spectrogram JSON output path (default <file>.spectrogram.json)")

	// process
	input := flag.String("input", "", "input directory to process")
	outputDir := flag.String("output", "processed", "output directory for processed files")
	resampleRate := flag.Int("resample", 0, "target sample rate in Hz (0 = step disabled)")
	format := flag.String("format", "", "output format wav|mp3|flac|ogg (empty = step disabled)")
	mono := flag.Bool("mono", false, "down-mix to mono")
	normalize := flag.Bool("normalize", false, "peak-normalize")
	peakDB := flag.Float64("peak", -1.0, "normalization target peak in dBFS")
	trimMode := flag.String("trim", "", "trim mode stored|global (empty = step disabled)")
	trimStart := flag.Float64("trim-start", 0, "global trim start in seconds")
	trimEnd := flag.Float64("trim-end", 0, "global trim end in seconds")
	dryRun := flag.Bool("dry-run", false, "advance progress without touching any audio")
	storePath := flag.String("store", "regions.db", "region store directory")

	// region
	set := flag.String("set", "", `store a trim region as "start:end[:label]"`)
	list := flag.Bool("list", false, "list stored trim regions")
	remove := flag.Bool("delete", false, "delete the file's stored trim region")

	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logging.SetLevel(logging.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "analyze":
		err = runAnalyze(ctx, *file, *fftSize, *frames, *out)
	case "process":
		err = runProcess(ctx, processConfig{
			input:        *input,
			outputDir:    *outputDir,
			resampleRate: *resampleRate,
			format:       *format,
			mono:         *mono,
			normalize:    *normalize,
			peakDB:       *peakDB,
			trimMode:     *trimMode,
			trimStart:    *trimStart,
			trimEnd:      *trimEnd,
			dryRun:       *dryRun,
			storePath:    *storePath,
		})
	case "region":
		err = runRegion(*storePath, *file, *set, *list, *remove)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", *mode, err)
	}
}

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  Analyze (spectrogram to JSON):")
	fmt.Println("    wavebatch -mode analyze -file clip.wav [-fft 1024] [-frames 512] [-out clip.spectrogram.json]")
	fmt.Println("  Process a directory:")
	fmt.Println("    wavebatch -mode process -input ./in -output ./out [-resample 44100] [-format wav]")
	fmt.Println("              [-mono] [-normalize -peak -1.0] [-trim stored|global -trim-start 0 -trim-end 10]")
	fmt.Println("  Manage stored trim regions:")
	fmt.Println("    wavebatch -mode region -file clip.wav -set 1.5:12.25:chorus")
	fmt.Println("    wavebatch -mode region -list")
	fmt.Println("    wavebatch -mode region -file clip.wav -delete")
}

func runAnalyze(ctx context.Context, path string, fftSize, targetFrames int, outPath string) error {
	if path == "" {
		return fmt.Errorf("missing -file")
	}

	decoder := transcode.NewDecoder(nil)
	buf, err := decoder.DecodeFile(ctx, path)
	if err != nil {
		return err
	}

	engine := spectral.NewEngine(1)
	defer engine.Close()

	result, err := engine.Analyze(ctx, spectral.Request{
		Signal:       audio.MixToMonoSamples(buf),
		SampleRate:   buf.SampleRate,
		FFTSize:      fftSize,
		TargetFrames: targetFrames,
	})
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = path + ".spectrogram.json"
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("%s: %d frames x %d bins (hop %d) -> %s\n",
		filepath.Base(path), result.NumFrames, result.NumBins, result.HopSize, outPath)
	return nil
}

type processConfig struct {
	input        string
	outputDir    string
	resampleRate int
	format       string
	mono         bool
	normalize    bool
	peakDB       float64
	trimMode     string
	trimStart    float64
	trimEnd      float64
	dryRun       bool
	storePath    string
}

func (c processConfig) options() (batch.Options, error) {
	opts := batch.DefaultOptions()

	if c.resampleRate > 0 {
		opts.Resample.Enabled = true
		opts.Resample.TargetRate = c.resampleRate
	}
	if c.format != "" {
		f, err := transcode.ParseFormat(c.format)
		if err != nil {
			return opts, err
		}
		opts.Convert.Enabled = true
		opts.Convert.Format = f
	}
	opts.Mono.Enabled = c.mono
	if c.normalize {
		opts.Normalize.Enabled = true
		opts.Normalize.TargetPeakDB = c.peakDB
	}
	if c.trimMode != "" {
		opts.Trim.Enabled = true
		opts.Trim.Mode = batch.TrimMode(c.trimMode)
		opts.Trim.Start = c.trimStart
		opts.Trim.End = c.trimEnd
	}
	return opts, opts.Validate()
}

func runProcess(ctx context.Context, cfg processConfig) error {
	if cfg.input == "" {
		return fmt.Errorf("missing -input")
	}

	opts, err := cfg.options()
	if err != nil {
		return err
	}

	files, err := collectFiles(cfg.input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audio files under %s", cfg.input)
	}

	var runner batch.Runner
	if cfg.dryRun {
		runner = &batch.SimulatedRunner{}
	} else {
		var store *regions.Store
		if opts.Trim.Enabled && opts.Trim.Mode == batch.TrimModeStored {
			store, err = regions.Open(cfg.storePath)
			if err != nil {
				return err
			}
			defer store.Close()
		}
		runner, err = batch.NewTransformRunner(nil, store, cfg.outputDir)
		if err != nil {
			return err
		}
	}

	seq := batch.NewSequencer(runner)
	updates, err := seq.ProcessBatch(ctx, files, opts)
	if err != nil {
		return err
	}

	totalUnits := len(files) * max(len(opts.EnabledSteps()), 1)
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(totalUnits),
		mpb.PrependDecorators(
			decor.Name("Processing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	var last batch.Aggregate
	for update := range updates {
		bar.SetCurrent(int64(update.Aggregate.CompletedUnits))
		last = update.Aggregate

		if update.File.Status == batch.StatusFailed {
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", update.File.Name, update.File.Message)
		}
	}
	bar.Abort(false)
	p.Wait()

	fmt.Printf("done: %d succeeded, %d failed of %d\n", last.Succeeded, last.Failed, last.Total)
	if ctx.Err() != nil {
		return fmt.Errorf("run aborted")
	}
	return nil
}

// collectFiles walks the input directory for audio files and builds the
// batch file list with stable content-derived IDs and tagged display
// names.
func collectFiles(root string) ([]batch.FileRef, error) {
	var files []batch.FileRef

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		id, err := regions.FileKey(path)
		if err != nil {
			// Unreadable now; give it a throwaway ID and let the run
			// surface the real error.
			id = uuid.NewString()
		}

		files = append(files, batch.FileRef{
			ID:   id,
			Name: displayName(path),
			Path: path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// displayName prefers the embedded title tag over the bare file name.
func displayName(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return filepath.Base(path)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil || m.Title() == "" {
		return filepath.Base(path)
	}
	return m.Title()
}

func runRegion(storePath, file, set string, list, remove bool) error {
	store, err := regions.Open(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case list:
		trims, err := store.ListTrims()
		if err != nil {
			return err
		}
		if len(trims) == 0 {
			fmt.Println("no stored trim regions")
			return nil
		}
		for id, r := range trims {
			label := r.Label
			if label == "" {
				label = "-"
			}
			fmt.Printf("%s  %8.3fs .. %8.3fs  %s\n", id, r.Start, r.End, label)
		}
		return nil

	case set != "":
		if file == "" {
			return fmt.Errorf("missing -file")
		}
		region, err := parseRegion(set)
		if err != nil {
			return err
		}
		id, err := regions.FileKey(file)
		if err != nil {
			return err
		}
		if err := store.SetTrim(id, region); err != nil {
			return err
		}
		fmt.Printf("stored trim %.3fs..%.3fs for %s (%s)\n", region.Start, region.End, filepath.Base(file), id)
		return nil

	case remove:
		if file == "" {
			return fmt.Errorf("missing -file")
		}
		id, err := regions.FileKey(file)
		if err != nil {
			return err
		}
		if err := store.DeleteTrim(id); err != nil {
			return err
		}
		fmt.Printf("deleted trim region for %s\n", filepath.Base(file))
		return nil

	default:
		return fmt.Errorf("region mode needs one of -set, -list, -delete")
	}
}

// parseRegion parses "start:end" or "start:end:label".
func parseRegion(s string) (regions.Region, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return regions.Region{}, fmt.Errorf("region %q: want start:end[:label]", s)
	}

	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return regions.Region{}, fmt.Errorf("region start %q: %w", parts[0], err)
	}
	end, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return regions.Region{}, fmt.Errorf("region end %q: %w", parts[1], err)
	}

	r := regions.Region{Start: start, End: end}
	if len(parts) == 3 {
		r.Label = parts[2]
	}
	return r, r.Validate()
}
