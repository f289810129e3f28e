package events

import (
	"time"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLAPaused    EventType = "sla_paused"
	EventSLAResumed   EventType = "sla_resumed"
	EventSLAEscalated EventType = "sla_escalated"
)

// Actor encapsulates actor metadata for an event. System-originated events
// such as sweeps leave SubjectID empty.
type Actor struct {
	Type      domain.SubjectType `json:"type,omitempty"`
	SubjectID string             `json:"subject_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SLAPausedPayload payload.
type SLAPausedPayload struct {
	IntervalID string             `json:"interval_id"`
	Reason     domain.PauseReason `json:"reason"`
	StartedAt  time.Time          `json:"started_at"`
}

// SLAResumedPayload payload.
type SLAResumedPayload struct {
	IntervalID    string             `json:"interval_id"`
	Reason        domain.PauseReason `json:"reason"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       time.Time          `json:"ended_at"`
	PausedMinutes int                `json:"paused_minutes"`
}

// SLAEscalatedPayload payload. One event carries one fired level.
type SLAEscalatedPayload struct {
	RuleID             int64                   `json:"rule_id"`
	RuleName           string                  `json:"rule_name"`
	Level              int                     `json:"level"`
	Action             domain.EscalationAction `json:"action"`
	TargetUserID       *string                 `json:"target_user_id,omitempty"`
	TargetDepartmentID *string                 `json:"target_department_id,omitempty"`
	Clock              domain.SLAClock         `json:"clock"`
	ElapsedMinutes     int                     `json:"elapsed_minutes"`
	Overall            domain.SLAState         `json:"overall"`
}
