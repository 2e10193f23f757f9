package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classification of a pipeline fault.
type ErrorKind string

const (
	// KindValidation - bad input; the job never starts or fails
	// immediately, no retry.
	KindValidation ErrorKind = "validation"
	// KindTransient - timeout/rate-limit from the provider; retried
	// within a stage only.
	KindTransient ErrorKind = "transient"
	// KindPermanent - malformed output after retries exhausted, or a
	// logic fault in a required stage; aborts the pipeline.
	KindPermanent ErrorKind = "permanent"
	// KindOptional - caught failure of a best-effort stage; the
	// pipeline continues.
	KindOptional ErrorKind = "optional"
	// KindTimeout - the per-job wall clock expired.
	KindTimeout ErrorKind = "timeout"
	// KindNotComparable - comparator precondition violated.
	KindNotComparable ErrorKind = "not_comparable"
)

// ErrNotComparable is returned when two iterations cannot be compared
// because one is not completed or lacks a report.
var ErrNotComparable = errors.New("iterations are not comparable")

// StageError carries the originating stage name and a stable kind so
// callers can branch on failure class without string matching.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage name and kind.
func NewStageError(stage string, kind ErrorKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// StageErrorKind extracts the kind from an error chain, or KindPermanent
// if the error is not a StageError.
func StageErrorKind(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPermanent
}

// StageErrorStage extracts the originating stage name, if any.
func StageErrorStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
