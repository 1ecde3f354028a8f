// Package domain contains the core domain types for the execution context.
package domain

import "fmt"

// Stage is the pipeline position of an execution. Forward-only; any
// stage may fall to Failed.
type Stage string

const (
	StagePending    Stage = "pending"
	StageDetecting  Stage = "detecting"
	StageValidating Stage = "validating"
	StagePreparing  Stage = "preparing"
	StageExecuting  Stage = "executing"
	StageMonitoring Stage = "monitoring"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

var stageOrder = map[Stage]int{
	StagePending:    0,
	StageDetecting:  1,
	StageValidating: 2,
	StagePreparing:  3,
	StageExecuting:  4,
	StageMonitoring: 5,
	StageCompleted:  6,
}

// IsTerminal reports whether the stage is final.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanAdvance reports whether next is a legal move: the immediate next
// stage, or Failed from anywhere non-terminal.
func (s Stage) CanAdvance(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	cur, ok := stageOrder[s]
	if !ok {
		return false
	}
	nxt, ok := stageOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Advance validates and returns the next stage.
func (s Stage) Advance(next Stage) (Stage, error) {
	if !s.CanAdvance(next) {
		return s, fmt.Errorf("invalid stage transition %s -> %s", s, next)
	}
	return next, nil
}
