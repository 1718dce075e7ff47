// Package conversation stores the per-user state of multi-step chat flows,
// keyed by messaging token.
package conversation

import (
	"context"
	"time"
)

// Step tags the flow a user is in. The idle step is represented by the
// absence of stored state.
type Step string

const (
	StepIdle                  Step = ""
	StepAwaitingStudentID     Step = "awaiting_student_id"
	StepAwaitingName          Step = "awaiting_name"
	StepAwaitingClass         Step = "awaiting_class"
	StepAwaitingLocation      Step = "awaiting_location"
	StepAwaitingClassToJoin   Step = "awaiting_class_to_join"
	StepAwaitingClassToLeave  Step = "awaiting_class_to_leave"
	StepAwaitingUnbindConfirm Step = "awaiting_unbind_confirm"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepIdle, StepAwaitingStudentID, StepAwaitingName, StepAwaitingClass,
		StepAwaitingLocation, StepAwaitingClassToJoin, StepAwaitingClassToLeave,
		StepAwaitingUnbindConfirm:
		return true
	}
	return false
}

// State is the in-progress flow for one messaging token.
type State struct {
	Step Step `json:"step"`

	// Registration.
	StudentID string `json:"student_id,omitempty"`
	Name      string `json:"name,omitempty"`

	// Pending GPS check-in.
	CourseID  string `json:"course_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Retries   int    `json:"retries,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversation state. Get returns nil, nil when the token
// has no state or its state has expired.
type Store interface {
	Get(ctx context.Context, token string) (*State, error)
	Set(ctx context.Context, token string, st *State) error
	Clear(ctx context.Context, token string) error
}
