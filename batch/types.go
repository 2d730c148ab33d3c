package batch

import (
	"fmt"

	"github.com/wavebatch/wavebatch/transcode"
)

// FileRef identifies one input file of a batch run.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Status is the lifecycle stage of one file within a run.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Step names one processing stage of the pipeline.
type Step string

const (
	StepResample  Step = "resample"
	StepConvert   Step = "convert"
	StepMono      Step = "mono"
	StepNormalize Step = "normalize"
	StepTrim      Step = "trim"
)

// stepOrder fixes the execution order of enabled steps. The order the
// user toggled them in never matters.
var stepOrder = [...]Step{StepResample, StepConvert, StepMono, StepNormalize, StepTrim}

// TrimMode selects where the trim step gets its region from.
type TrimMode string

const (
	// TrimModeStored uses each file's own stored trim region; files
	// without one are passed through untouched.
	TrimModeStored TrimMode = "stored"
	// TrimModeGlobal applies one start/end range to every file.
	TrimModeGlobal TrimMode = "global"
)

// ResampleOptions configures the resample step.
type ResampleOptions struct {
	Enabled    bool `json:"enabled"`
	TargetRate int  `json:"target_rate"`
}

// ConvertOptions configures the output format conversion step.
type ConvertOptions struct {
	Enabled bool             `json:"enabled"`
	Format  transcode.Format `json:"format"`
}

// MonoOptions configures the mono down-mix step.
type MonoOptions struct {
	Enabled bool `json:"enabled"`
}

// NormalizeOptions configures the peak normalization step.
type NormalizeOptions struct {
	Enabled      bool    `json:"enabled"`
	TargetPeakDB float64 `json:"target_peak_db"`
}

// TrimOptions configures the trim step. Start/End apply in global mode
// only.
type TrimOptions struct {
	Enabled bool     `json:"enabled"`
	Mode    TrimMode `json:"mode"`
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
}

// Options is the full batch configuration: five independently toggleable
// steps.
type Options struct {
	Resample  ResampleOptions  `json:"resample"`
	Convert   ConvertOptions   `json:"convert"`
	Mono      MonoOptions      `json:"mono"`
	Normalize NormalizeOptions `json:"normalize"`
	Trim      TrimOptions      `json:"trim"`
}

// DefaultOptions returns a configuration with every step disabled and
// sensible parameters for when steps get switched on.
func DefaultOptions() Options {
	return Options{
		Resample:  ResampleOptions{TargetRate: 44100},
		Convert:   ConvertOptions{Format: transcode.FormatWAV},
		Normalize: NormalizeOptions{TargetPeakDB: -1.0},
		Trim:      TrimOptions{Mode: TrimModeStored},
	}
}

// EnabledSteps returns the enabled steps in canonical execution order.
func (o Options) EnabledSteps() []Step {
	enabled := map[Step]bool{
		StepResample:  o.Resample.Enabled,
		StepConvert:   o.Convert.Enabled,
		StepMono:      o.Mono.Enabled,
		StepNormalize: o.Normalize.Enabled,
		StepTrim:      o.Trim.Enabled,
	}

	steps := make([]Step, 0, len(stepOrder))
	for _, s := range stepOrder {
		if enabled[s] {
			steps = append(steps, s)
		}
	}
	return steps
}

// Validate checks the parameters of every enabled step.
func (o Options) Validate() error {
	if o.Resample.Enabled && o.Resample.TargetRate <= 0 {
		return fmt.Errorf("resample target rate must be positive, got %d", o.Resample.TargetRate)
	}
	if o.Convert.Enabled {
		if _, err := transcode.ParseFormat(string(o.Convert.Format)); err != nil {
			return err
		}
	}
	if o.Normalize.Enabled && o.Normalize.TargetPeakDB > 0 {
		return fmt.Errorf("normalize target peak must be <= 0 dBFS, got %.2f", o.Normalize.TargetPeakDB)
	}
	if o.Trim.Enabled {
		switch o.Trim.Mode {
		case TrimModeStored:
		case TrimModeGlobal:
			if o.Trim.Start < 0 || o.Trim.End <= o.Trim.Start {
				return fmt.Errorf("global trim range [%.3f, %.3f) is invalid", o.Trim.Start, o.Trim.End)
			}
		default:
			return fmt.Errorf("unknown trim mode %q", o.Trim.Mode)
		}
	}
	return nil
}

// FileState is the sequencer-owned processing state of one file. The
// sequencer emits value copies; consumers never see later mutations.
type FileState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Step    Step   `json:"step,omitempty"`
	Message string `json:"message,omitempty"`
}

// Aggregate summarizes a whole run at one instant.
type Aggregate struct {
	Total          int `json:"total"`
	Queued         int `json:"queued"`
	Running        int `json:"running"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	CompletedUnits int `json:"completed_units"`
	TotalUnits     int `json:"total_units"`
	Percent        int `json:"percent"`
}

// ProgressUpdate pairs a snapshot of the file that just changed with a
// freshly computed aggregate.
type ProgressUpdate struct {
	File      FileState `json:"file"`
	Aggregate Aggregate `json:"aggregate"`
}
