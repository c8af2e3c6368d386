package pipeline

import (
	"errors"
	"fmt"
)

// FatalError marks a stage failure the pipeline cannot absorb. Only fatal
// errors reach the retry coordinator; degraded stages recover locally with
// empty or unfiltered intermediate results.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure in stage %q: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// FailedStage lets callers name the failing stage without depending on this
// package's error type.
func (e *FatalError) FailedStage() string {
	return e.Stage
}

func fatal(stage string, err error) error {
	return &FatalError{Stage: stage, Err: err}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// FatalStage names the failing stage, or "unknown" for untagged errors.
func FatalStage(err error) string {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return "unknown"
}
