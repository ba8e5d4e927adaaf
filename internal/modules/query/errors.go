package query

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageClassify   Stage = "classify"
	StageSelect     Stage = "select"
	StageSynthesize Stage = "synthesize"
	StageExecute    Stage = "execute"
	StageChart      Stage = "chart"
)

// StageError marks the pipeline stage that could not produce a payload.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("query %s failed", e.Stage)
	}
	return fmt.Sprintf("query %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

var (
	// ErrNoData means a chart was requested over an empty result.
	ErrNoData = errors.New("no data to chart")
	// ErrNoSource means no candidate could serve a structured question.
	ErrNoSource = errors.New("no data source available")
	// ErrEmptyCompletion is returned when the model answered with nothing usable.
	ErrEmptyCompletion = errors.New("empty completion")
)
