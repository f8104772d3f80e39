// Package thumbnail contains the per-video refresh coordinator and the
// catalog-driven batch processor built on top of it.
package thumbnail

import "errors"

// Stage represents where a refresh run is in the pipeline.
type Stage string

const (
	// StageFetching indicates the segment is being resolved and downloaded.
	StageFetching Stage = "FETCHING"
	// StageExtracting indicates a still frame is being encoded from the segment.
	StageExtracting Stage = "EXTRACTING"
	// StageValidating indicates the encoded frame is being checked.
	StageValidating Stage = "VALIDATING"
	// StagePublishing indicates the thumbnail is being sent to the platform.
	StagePublishing Stage = "PUBLISHING"
	// StageDone indicates the refresh finished successfully.
	StageDone Stage = "DONE"
	// StageFailed indicates the refresh stopped with an error.
	StageFailed Stage = "FAILED"
)

// ErrInvalidTransition is returned when an invalid stage transition is attempted.
var ErrInvalidTransition = errors.New("invalid stage transition")

// validTransitions defines which stage transitions are allowed.
var validTransitions = map[Stage][]Stage{
	StageFetching:   {StageExtracting, StageFailed},
	StageExtracting: {StageValidating, StageFailed},
	StageValidating: {StagePublishing, StageFailed},
	StagePublishing: {StageDone, StageFailed},
	StageDone:       {},
	StageFailed:     {},
}

// canTransition checks if a transition from one stage to another is valid.
func canTransition(from, to Stage) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// run tracks the pipeline stage of a single refresh invocation.
type run struct {
	stage Stage
}

func newRun() *run {
	return &run{stage: StageFetching}
}

// advance moves the run to the next stage.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *run) advance(to Stage) error {
	if !canTransition(r.stage, to) {
		return ErrInvalidTransition
	}
	r.stage = to
	return nil
}

// Result is the terminal outcome of a single refresh.
// On failure, Stage names the stage that was running when the error occurred.
type Result struct {
	Stage Stage
	Err   error
}

// OK returns true if the refresh completed successfully.
func (r Result) OK() bool {
	return r.Err == nil
}
