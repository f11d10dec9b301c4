package seed

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteRejected marks a stage whose batch insert failed.
	ErrWriteRejected = errors.New("write rejected")
	// ErrReadBack marks a stage whose read-back query failed.
	ErrReadBack = errors.New("read-back failed")
)

// Op names the store operation a stage failed in.
type Op string

const (
	OpInsert   Op = "insert"
	OpReadBack Op = "read-back"
)

func (o Op) sentinel() error {
	if o == OpReadBack {
		return ErrReadBack
	}
	return ErrWriteRejected
}

// StageError is the error a run aborts with. It matches both the stage
// sentinel (ErrWriteRejected or ErrReadBack) and the store's own error
// under errors.Is.
type StageError struct {
	Level string
	Op    Op
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %s: %v", e.Level, e.Op, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Op.sentinel(), e.Err}
}
