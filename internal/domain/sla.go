package domain

import "time"

// EscalationAction enumerates what happens when an escalation level fires.
type EscalationAction string

const (
	EscalationActionNotifyUser       EscalationAction = "notify_user"
	EscalationActionNotifyDepartment EscalationAction = "notify_department"
	EscalationActionReassign         EscalationAction = "reassign"
)

// SLAClock identifies one of the two SLA clocks of a ticket.
type SLAClock string

const (
	SLAClockResponse   SLAClock = "response"
	SLAClockResolution SLAClock = "resolution"
)

// EscalationBasis tells whether TriggerTime counts from ticket creation or from
// the bound clock's breach.
type EscalationBasis string

const (
	EscalationBasisElapsed EscalationBasis = "elapsed"
	EscalationBasisBreach  EscalationBasis = "breach"
)

// EscalationLevel is one rung of a rule's escalation ladder.
type EscalationLevel struct {
	Level              int              `json:"level"`
	TriggerTime        int              `json:"trigger_time"`
	Action             EscalationAction `json:"action"`
	TargetUserID       *string          `json:"target_user_id,omitempty"`
	TargetDepartmentID *string          `json:"target_department_id,omitempty"`
	Clock              SLAClock         `json:"clock,omitempty"`
	Basis              EscalationBasis  `json:"basis,omitempty"`
}

// BoundClock returns the clock the level measures, defaulting to resolution.
func (l EscalationLevel) BoundClock() SLAClock {
	if l.Clock == "" {
		return SLAClockResolution
	}
	return l.Clock
}

// TriggerBasis returns the level basis, defaulting to elapsed-since-creation.
func (l EscalationLevel) TriggerBasis() EscalationBasis {
	if l.Basis == "" {
		return EscalationBasisElapsed
	}
	return l.Basis
}

// SLARule defines response/resolution targets for the tickets it matches.
type SLARule struct {
	ID                int64
	Name              string
	Description       string
	DepartmentID      *string
	Priorities        []TicketPriority
	CustomerTypes     []string
	FirstResponseTime int
	ResolutionTime    int
	BusinessHoursOnly bool
	CalendarName      string
	IsActive          bool
	PauseConditions   []PauseReason
	EscalationLevels  []EscalationLevel
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AllowsPause reports whether the rule permits pausing for the given reason.
func (r *SLARule) AllowsPause(reason PauseReason) bool {
	if len(r.PauseConditions) == 0 {
		return true
	}
	for _, allowed := range r.PauseConditions {
		if allowed == reason {
			return true
		}
	}
	return false
}

// PauseReason enumerates why a ticket's SLA clock was stopped.
type PauseReason string

const (
	PauseReasonWaitingCustomer   PauseReason = "waiting_customer"
	PauseReasonWaitingThirdParty PauseReason = "waiting_third_party"
	PauseReasonPendingApproval   PauseReason = "pending_approval"
	PauseReasonCustomerTesting   PauseReason = "customer_testing"
)

// Valid reports whether the reason is a known pause reason.
func (r PauseReason) Valid() bool {
	switch r {
	case PauseReasonWaitingCustomer, PauseReasonWaitingThirdParty, PauseReasonPendingApproval, PauseReasonCustomerTesting:
		return true
	}
	return false
}

// PauseInterval is a clock-stop period. A nil EndedAt means the ticket is paused now.
type PauseInterval struct {
	ID        string
	TicketID  string
	Reason    PauseReason
	StartedAt time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
}

// IsOpen reports whether the interval has not been resumed yet.
func (p *PauseInterval) IsOpen() bool {
	return p.EndedAt == nil
}

// SLAState is the computed state of one SLA clock.
type SLAState string

const (
	SLAStateWithin        SLAState = "within"
	SLAStateWarning       SLAState = "warning"
	SLAStateBreached      SLAState = "breached"
	SLAStateNotApplicable SLAState = "not_applicable"
)

// Severity orders states so the worse of two clocks can be picked.
func (s SLAState) Severity() int {
	switch s {
	case SLAStateBreached:
		return 3
	case SLAStateWarning:
		return 2
	case SLAStateWithin:
		return 1
	default:
		return 0
	}
}

// SLAStatus is recomputed on demand; it is never the source of truth.
type SLAStatus struct {
	TicketID                string
	RuleID                  *int64
	ResponseStatus          SLAState
	ResolutionStatus        SLAState
	Overall                 SLAState
	ResponseTimeRemaining   int
	ResolutionTimeRemaining int
	ResponseElapsed         int
	ResolutionElapsed       int
	ResponseStopped         bool
	ResolutionStopped       bool
	IsPaused                bool
	ActivePauseReason       *PauseReason
	EvaluatedAt             time.Time
}

// Elapsed returns the elapsed minutes and stopped flag for a clock.
func (s *SLAStatus) Elapsed(clock SLAClock) (int, bool) {
	if clock == SLAClockResponse {
		return s.ResponseElapsed, s.ResponseStopped
	}
	return s.ResolutionElapsed, s.ResolutionStopped
}

// EscalationFiring records that a level fired for a ticket, so it never fires again.
type EscalationFiring struct {
	ID                 string
	TicketID           string
	RuleID             int64
	Level              int
	Action             EscalationAction
	TargetUserID       *string
	TargetDepartmentID *string
	FiredAt            time.Time
}
