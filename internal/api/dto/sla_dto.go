package dto

import (
	"time"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// PauseRequest payload.
type PauseRequest struct {
	TicketID string             `json:"ticket_id"`
	Reason   domain.PauseReason `json:"reason"`
}

// ResumeRequest payload.
type ResumeRequest struct {
	TicketID string `json:"ticket_id"`
}

// SLAStatusResponse is the computed SLA view of one ticket.
type SLAStatusResponse struct {
	TicketID                string              `json:"ticket_id"`
	RuleID                  *int64              `json:"rule_id"`
	ResponseStatus          domain.SLAState     `json:"response_status"`
	ResolutionStatus        domain.SLAState     `json:"resolution_status"`
	OverallStatus           domain.SLAState     `json:"overall_status"`
	ResponseTimeRemaining   int                 `json:"response_time_remaining"`
	ResolutionTimeRemaining int                 `json:"resolution_time_remaining"`
	ResponseElapsed         int                 `json:"response_elapsed"`
	ResolutionElapsed       int                 `json:"resolution_elapsed"`
	IsPaused                bool                `json:"is_paused"`
	PauseReason             *domain.PauseReason `json:"pause_reason,omitempty"`
	EvaluatedAt             time.Time           `json:"evaluated_at"`
}

// PauseIntervalResponse is one ledger entry.
type PauseIntervalResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	Reason    domain.PauseReason `json:"reason"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at"`
}

// EscalationFiringResponse reports one fired level.
type EscalationFiringResponse struct {
	TicketID           string                  `json:"ticket_id"`
	RuleID             int64                   `json:"rule_id"`
	Level              int                     `json:"level"`
	Action             domain.EscalationAction `json:"action"`
	TargetUserID       *string                 `json:"target_user_id,omitempty"`
	TargetDepartmentID *string                 `json:"target_department_id,omitempty"`
	FiredAt            time.Time               `json:"fired_at"`
}

// SweepResponse summarizes a manual sweep.
type SweepResponse struct {
	Tickets int `json:"tickets"`
	Fired   int `json:"fired"`
	Failed  int `json:"failed"`
}

// SLAReportResponse summarizes SLA outcomes.
type SLAReportResponse struct {
	Total                int       `json:"total"`
	WithinSLA            int       `json:"within_sla"`
	AtRisk               int       `json:"at_risk"`
	Breached             int       `json:"breached"`
	NotApplicable        int       `json:"not_applicable"`
	AvgResponseMinutes   float64   `json:"avg_response_minutes"`
	AvgResolutionMinutes float64   `json:"avg_resolution_minutes"`
	RespondedTickets     int       `json:"responded_tickets"`
	ResolvedTickets      int       `json:"resolved_tickets"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// SLARuleRequest is the create/update payload of a rule.
type SLARuleRequest struct {
	Name              string                   `json:"name"`
	Description       string                   `json:"description"`
	DepartmentID      *string                  `json:"department_id"`
	Priorities        []domain.TicketPriority  `json:"priorities"`
	CustomerTypes     []string                 `json:"customer_types"`
	FirstResponseTime int                      `json:"first_response_time"`
	ResolutionTime    int                      `json:"resolution_time"`
	BusinessHoursOnly *bool                    `json:"business_hours_only"`
	CalendarName      string                   `json:"calendar_name"`
	IsActive          *bool                    `json:"is_active"`
	PauseConditions   []domain.PauseReason     `json:"pause_conditions"`
	EscalationLevels  []domain.EscalationLevel `json:"escalation_levels"`
}

// SLARuleResponse represents a stored rule.
type SLARuleResponse struct {
	ID                int64                    `json:"id"`
	Name              string                   `json:"name"`
	Description       string                   `json:"description"`
	DepartmentID      *string                  `json:"department_id"`
	Priorities        []domain.TicketPriority  `json:"priorities"`
	CustomerTypes     []string                 `json:"customer_types"`
	FirstResponseTime int                      `json:"first_response_time"`
	ResolutionTime    int                      `json:"resolution_time"`
	BusinessHoursOnly bool                     `json:"business_hours_only"`
	CalendarName      string                   `json:"calendar_name,omitempty"`
	IsActive          bool                     `json:"is_active"`
	PauseConditions   []domain.PauseReason     `json:"pause_conditions"`
	EscalationLevels  []domain.EscalationLevel `json:"escalation_levels"`
	Version           int                      `json:"version"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}
