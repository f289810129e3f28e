package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// IsTerminal reports whether the resolution clock has stopped for this status.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Known customer types. Rules may reference others; matching is by exact value.
const (
	CustomerTypeConsultant = "consultant"
	CustomerTypeDirect     = "direct"
	CustomerTypePremium    = "premium"
	CustomerTypeEnterprise = "enterprise"
)

// Ticket is the read-only view of a support request the SLA engine works on.
// The ticketing subsystem owns it.
type Ticket struct {
	ID              string
	ExternalKey     string
	DepartmentID    string
	Title           string
	Status          TicketStatus
	Priority        TicketPriority
	CustomerType    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}

// ResolutionInstant returns when the resolution clock stopped, or nil while it runs.
func (t *Ticket) ResolutionInstant() *time.Time {
	if !t.Status.IsTerminal() {
		return nil
	}
	switch {
	case t.ResolvedAt != nil:
		return t.ResolvedAt
	case t.ClosedAt != nil:
		return t.ClosedAt
	default:
		at := t.UpdatedAt
		return &at
	}
}
