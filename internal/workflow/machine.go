package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// Complete validates payload against the stage definition and returns a new
// stage set with the stage marked completed. Payload fields are merged over
// any fields already on the stage. completedAt is kept when the stage was
// already completed.
func Complete(stages Stages, key StageKey, payload map[string]string, now time.Time) (Stages, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(payload); err != nil {
		return nil, err
	}

	next := stages.Clone()
	prev := next[key]
	stage := Stage{
		State:  StateCompleted,
		Fields: make(map[string]string, len(prev.Fields)+len(payload)),
	}
	for k, v := range prev.Fields {
		stage.Fields[k] = v
	}
	for k, v := range payload {
		stage.Fields[k] = strings.TrimSpace(v)
	}

	at := now.UTC()
	if prev.State == StateCompleted && prev.CompletedAt != nil {
		at = *prev.CompletedAt
	}
	stage.CompletedAt = &at
	if key == StageApproveQuote {
		approvedAt := at
		if prev.ApprovedAt != nil && prev.State == StateCompleted {
			approvedAt = *prev.ApprovedAt
		}
		stage.ApprovedAt = &approvedAt
	}

	next[key] = stage
	return next, nil
}

// Skip marks an optional stage as intentionally bypassed. Only skippable
// stages accept it; notes may be carried along.
func Skip(stages Stages, key StageKey, notes string, now time.Time) (Stages, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}
	if !def.Skippable {
		return nil, shared.NewValidationError(fmt.Sprintf("stage %s cannot be skipped", key), "skipped")
	}

	next := stages.Clone()
	at := now.UTC()
	stage := Stage{State: StateSkipped, SkippedAt: &at}
	if notes = strings.TrimSpace(notes); notes != "" {
		stage.Fields = map[string]string{FieldNotes: notes}
	}
	next[key] = stage
	return next, nil
}

// Reset drops the stage back to pending, clearing its payload and timestamps.
// The derived status may regress as a result.
func Reset(stages Stages, key StageKey) (Stages, error) {
	if _, err := Lookup(key); err != nil {
		return nil, err
	}
	next := stages.Clone()
	delete(next, key)
	return next, nil
}
