package windowsync

import "errors"

// Stages of a sync cycle, used to label failures.
const (
	StageFinalized  = "finalized"
	StageFetch      = "fetch"
	StagePublish    = "publish"
	StagePurge      = "purge"
	StageResume     = "resume"
	StageCheckpoint = "checkpoint"
)

// StageError records which stage of a cycle failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// mayHaveWritten reports whether a cycle that failed with err could have
// changed the oracle before failing.
func mayHaveWritten(err error) bool {
	var se *StageError
	if !errors.As(err, &se) {
		return false
	}
	return se.Stage == StagePublish || se.Stage == StagePurge
}
