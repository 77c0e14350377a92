// Package streaming pushes import progress to SSE clients, one feed per
// import session.
package streaming

import "time"

// EventType represents the type of SSE event
type EventType string

const (
	EventTypeSession   EventType = "session"
	EventTypeStage     EventType = "stage"
	EventTypeCandidate EventType = "candidate"
	EventTypeComplete  EventType = "complete"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// SessionEvent announces import session state changes.
type SessionEvent struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// StageEvent marks a pipeline stage starting or finishing.
type StageEvent struct {
	Stage  string `json:"stage"` // "parse", "dedup", "suggest", "reconcile", "commit"
	Detail string `json:"detail,omitempty"`
}

// CandidateEvent streams one classified transaction during preview.
type CandidateEvent struct {
	FitID       string `json:"fitid,omitempty"`
	PostedAt    string `json:"postedAt,omitempty"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Duplicate   bool   `json:"duplicate"`
	Matches     int    `json:"matches"`
}

// CompleteEvent closes a session with final counts.
type CompleteEvent struct {
	ImportID   string `json:"importId,omitempty"`
	Candidates int    `json:"candidates"`
	Duplicates int    `json:"duplicates"`
	Imported   int    `json:"imported"`
}

// ErrorEvent reports a failure that ended the session.
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, data any) SSEEvent {
	return SSEEvent{Type: typ, Timestamp: time.Now().UTC(), Data: data}
}
