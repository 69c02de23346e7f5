// Package agentlog defines structured log entries emitted by agents.
package agentlog

import (
	"strings"
	"time"

	"github.com/Strob0t/AgentFleet/internal/domain"
)

// Query bounds.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

// Entry is an immutable log line. Metadata is an opaque string, usually JSON.
type Entry struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Metadata  *string   `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateRequest holds a log line to append. Timestamp defaults to ingestion time.
type CreateRequest struct {
	Level     Level      `json:"level" validate:"required,oneof=debug info warn error fatal"`
	Message   string     `json:"message" validate:"required"`
	Metadata  *string    `json:"metadata,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Validate checks the level and message.
func (r *CreateRequest) Validate() error {
	if !r.Level.Valid() {
		return domain.NewValidationError("level", "unknown level %q", r.Level)
	}
	if strings.TrimSpace(r.Message) == "" {
		return domain.NewValidationError("message", "is required")
	}
	return nil
}

// New builds the entry for agentID. The caller must have validated req.
func New(agentID int64, req *CreateRequest, now time.Time) *Entry {
	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	return &Entry{
		AgentID:   agentID,
		Level:     req.Level,
		Message:   req.Message,
		Metadata:  req.Metadata,
		Timestamp: ts,
	}
}

// Query selects a page of an agent's log, newest first.
type Query struct {
	Level  Level // empty matches every level
	Limit  int   // 0 selects DefaultLimit
	Offset int
}

// Normalize validates q and fills defaults.
func (q *Query) Normalize() error {
	if q.Level != "" && !q.Level.Valid() {
		return domain.NewValidationError("level", "unknown level %q", q.Level)
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 0 || q.Limit > MaxLimit:
		return domain.NewValidationError("limit", "must be between 1 and %d", MaxLimit)
	}
	if q.Offset < 0 {
		return domain.NewValidationError("offset", "must not be negative")
	}
	return nil
}
