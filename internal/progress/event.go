// Package progress defines the stage events emitted by pipeline runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the pipeline milestone represented by an Event.
type Stage string

// Supported pipeline stages, in execution order.
const (
	StageScrape     Stage = "scrape"
	StageCutout     Stage = "cutout"
	StageAnalyze    Stage = "analyze"
	StageBackground Stage = "background"
	StageComposite  Stage = "composite"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

// Percent maps each stage boundary to its coarse progress value. Values are
// monotonically increasing within one run.
func (s Stage) Percent() int {
	switch s {
	case StageScrape:
		return 5
	case StageCutout:
		return 20
	case StageAnalyze:
		return 40
	case StageBackground:
		return 60
	case StageComposite:
		return 85
	case StageDone:
		return 100
	default:
		return 0
	}
}

// Event captures a single pipeline progress milestone.
type Event struct {
	// JobID uniquely identifies the pipeline run.
	JobID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone was reached.
	Stage Stage
	// Percent is the coarse progress value reported to pollers.
	Percent int
	// Dur captures how long the preceding stage took, when known.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScrape, StageCutout, StageAnalyze, StageBackground,
		StageComposite, StageDone, StageError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return fmt.Errorf("percent %d out of range", e.Percent)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
