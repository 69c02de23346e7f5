// Package task defines the Task domain entity and its status lifecycle.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
)

// Status represents the lifecycle position of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// transitions is the complete allow-list. Terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// requiresExitCode reports whether entering s must record an exit code.
func (s Status) requiresExitCode() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is in the allow-list.
// A status never transitions to itself.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports a status change outside the allow-list.
// It matches domain.ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition task from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return domain.ErrInvalidTransition }

// Task is one unit of work dispatched to an agent. The record tracks the
// lifecycle only; execution happens elsewhere.
type Task struct {
	ID           int64      `json:"id"`
	AgentID      int64      `json:"agent_id"`
	Name         string     `json:"name"`
	Description  *string    `json:"description"`
	Command      string     `json:"command"`
	Status       Status     `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ExitCode     *int       `json:"exit_code"`
	Output       *string    `json:"output"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	AgentID     int64   `json:"agent_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	Command     string  `json:"command" validate:"required"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if r.AgentID <= 0 {
		return domain.NewValidationError("agent_id", "must be a positive id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return domain.NewValidationError("name", "is required")
	}
	if strings.TrimSpace(r.Command) == "" {
		return domain.NewValidationError("command", "is required")
	}
	return nil
}

// New builds the initial pending record for req.
func New(req *CreateRequest, now time.Time) *Task {
	var desc *string
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			desc = &d
		}
	}
	return &Task{
		AgentID:     req.AgentID,
		Name:        strings.TrimSpace(req.Name),
		Description: desc,
		Command:     req.Command,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateRequest carries an optional status transition and the fields that
// accompany it. Nil fields are left unchanged.
type UpdateRequest struct {
	Status       *Status    `json:"status,omitempty" validate:"omitempty,oneof=pending running completed failed cancelled"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	Output       *string    `json:"output,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// Apply validates u against current and returns the resulting record.
// current is never modified.
func (u *UpdateRequest) Apply(current *Task, now time.Time) (Task, error) {
	next := *current
	target := current.Status
	changing := false

	if u.Status != nil {
		if !u.Status.Valid() {
			return Task{}, domain.NewValidationError("status", "unknown status %q", *u.Status)
		}
		if !CanTransition(current.Status, *u.Status) {
			return Task{}, &TransitionError{From: current.Status, To: *u.Status}
		}
		target = *u.Status
		changing = true
	} else if current.Status.Terminal() {
		return Task{}, domain.NewValidationError("status", "task is %s and can no longer be modified", current.Status)
	}

	if u.ExitCode != nil && !target.requiresExitCode() {
		return Task{}, domain.NewValidationError("exit_code", "only allowed when status is completed or failed")
	}
	if changing && target.requiresExitCode() && u.ExitCode == nil {
		return Task{}, domain.NewValidationError("exit_code", "is required when status is %s", target)
	}
	if u.StartedAt != nil && !(changing && target == StatusRunning) {
		return Task{}, domain.NewValidationError("started_at", "may only be set when the task starts running")
	}
	if u.CompletedAt != nil && !(changing && target.Terminal()) {
		return Task{}, domain.NewValidationError("completed_at", "may only be set when the task finishes")
	}

	next.Status = target
	if changing {
		switch {
		case target == StatusRunning:
			if u.StartedAt != nil {
				t := u.StartedAt.UTC()
				next.StartedAt = &t
			} else if next.StartedAt == nil {
				t := now
				next.StartedAt = &t
			}
		case target.Terminal():
			done := now
			if u.CompletedAt != nil {
				done = u.CompletedAt.UTC()
			}
			next.CompletedAt = &done
			if next.StartedAt == nil {
				// pending -> cancelled never ran; the zero-length interval keeps
				// completed_at paired with started_at.
				next.StartedAt = &done
			}
			if next.CompletedAt.Before(*next.StartedAt) {
				return Task{}, domain.NewValidationError("completed_at", "must not be before started_at")
			}
		}
	}

	if u.ExitCode != nil {
		code := *u.ExitCode
		next.ExitCode = &code
	}
	if u.Output != nil {
		out := *u.Output
		next.Output = &out
	}
	if u.ErrorMessage != nil {
		msg := *u.ErrorMessage
		next.ErrorMessage = &msg
	}

	next.UpdatedAt = now
	return next, nil
}
