// Package workflow holds the fulfillment stage registry and the derived-status
// state machine. Every function here is pure: inputs are never mutated and
// the next stage set is returned to the caller.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// StageState is the sum type Pending | Completed | Skipped.
type StageState int

const (
	StatePending StageState = iota
	StateCompleted
	StateSkipped
)

func (s StageState) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Stage is one entry of a quote's workflowStages map.
type Stage struct {
	State       StageState
	Fields      map[string]string
	CompletedAt *time.Time
	SkippedAt   *time.Time
	// ApprovedAt is only stamped on approveQuote.
	ApprovedAt *time.Time
}

// Satisfied reports whether the stage counts as done for derivation.
func (s Stage) Satisfied() bool {
	return s.State == StateCompleted || s.State == StateSkipped
}

// Field returns a payload value.
func (s Stage) Field(name string) string {
	return s.Fields[name]
}

func (s Stage) clone() Stage {
	out := s
	if s.Fields != nil {
		out.Fields = make(map[string]string, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

var reservedStageKeys = map[string]struct{}{
	"completed":   {},
	"skipped":     {},
	"completedAt": {},
	"skippedAt":   {},
	"approvedAt":  {},
}

// MarshalJSON flattens the payload fields next to the completed/skipped flags.
func (s Stage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+5)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["completed"] = s.State == StateCompleted
	out["skipped"] = s.State == StateSkipped
	if s.CompletedAt != nil {
		out["completedAt"] = s.CompletedAt.UTC()
	}
	if s.SkippedAt != nil {
		out["skippedAt"] = s.SkippedAt.UTC()
	}
	if s.ApprovedAt != nil {
		out["approvedAt"] = s.ApprovedAt.UTC()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the flattened wire form. completed and skipped may not both be true.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var completed, skipped bool
	if v, ok := raw["completed"]; ok {
		if err := json.Unmarshal(v, &completed); err != nil {
			return fmt.Errorf("workflow: stage completed: %w", err)
		}
	}
	if v, ok := raw["skipped"]; ok {
		if err := json.Unmarshal(v, &skipped); err != nil {
			return fmt.Errorf("workflow: stage skipped: %w", err)
		}
	}
	if completed && skipped {
		return shared.NewValidationError("stage cannot be both completed and skipped", "completed", "skipped")
	}

	next := Stage{State: StatePending}
	switch {
	case completed:
		next.State = StateCompleted
	case skipped:
		next.State = StateSkipped
	}
	for name, dst := range map[string]**time.Time{
		"completedAt": &next.CompletedAt,
		"skippedAt":   &next.SkippedAt,
		"approvedAt":  &next.ApprovedAt,
	} {
		v, ok := raw[name]
		if !ok || string(v) == "null" {
			continue
		}
		var ts time.Time
		if err := json.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("workflow: stage %s: %w", name, err)
		}
		*dst = &ts
	}
	for k, v := range raw {
		if _, reserved := reservedStageKeys[k]; reserved {
			continue
		}
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return fmt.Errorf("workflow: stage field %s: %w", k, err)
		}
		if next.Fields == nil {
			next.Fields = make(map[string]string)
		}
		next.Fields[k] = str
	}
	*s = next
	return nil
}

// Stages maps stage key to stage record. A nil or empty map means the quote
// has not entered fulfillment.
type Stages map[StageKey]Stage

// Get returns the stage, or a pending zero value when absent.
func (st Stages) Get(key StageKey) Stage {
	if st == nil {
		return Stage{}
	}
	return st[key]
}

// Completed reports whether key is in the Completed state.
func (st Stages) Completed(key StageKey) bool {
	return st.Get(key).State == StateCompleted
}

// Satisfied reports whether key is Completed or Skipped.
func (st Stages) Satisfied(key StageKey) bool {
	return st.Get(key).Satisfied()
}

// Clone deep-copies the stage set.
func (st Stages) Clone() Stages {
	out := make(Stages, len(st))
	for k, v := range st {
		out[k] = v.clone()
	}
	return out
}
