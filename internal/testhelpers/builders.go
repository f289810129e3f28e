// Package testhelpers provides fixture builders shared by the SLA tests.
package testhelpers

import (
	"time"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// T0 is a fixed reference instant (a Monday, 08:00 UTC) used across tests.
var T0 = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// At returns T0 shifted by the given number of minutes.
func At(minutes int) time.Time {
	return T0.Add(time.Duration(minutes) * time.Minute)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// ========================================
// Ticket Builder
// ========================================

// TicketBuilder builds Ticket instances for testing
type TicketBuilder struct {
	ticket domain.Ticket
}

// NewTicketBuilder creates a ticket created at T0, open, medium priority
func NewTicketBuilder() *TicketBuilder {
	return &TicketBuilder{
		ticket: domain.Ticket{
			ID:           "ticket-1",
			ExternalKey:  "TCK-0001",
			DepartmentID: "dept-support",
			Title:        "Printer on fire",
			Status:       domain.TicketStatusOpen,
			Priority:     domain.TicketPriorityMedium,
			CustomerType: domain.CustomerTypeDirect,
			CreatedAt:    T0,
			UpdatedAt:    T0,
		},
	}
}

// WithID sets the ticket ID
func (b *TicketBuilder) WithID(id string) *TicketBuilder {
	b.ticket.ID = id
	return b
}

// WithDepartment sets the department
func (b *TicketBuilder) WithDepartment(id string) *TicketBuilder {
	b.ticket.DepartmentID = id
	return b
}

// WithPriority sets the priority
func (b *TicketBuilder) WithPriority(p domain.TicketPriority) *TicketBuilder {
	b.ticket.Priority = p
	return b
}

// WithCustomerType sets the customer type
func (b *TicketBuilder) WithCustomerType(ct string) *TicketBuilder {
	b.ticket.CustomerType = ct
	return b
}

// WithStatus sets the status
func (b *TicketBuilder) WithStatus(s domain.TicketStatus) *TicketBuilder {
	b.ticket.Status = s
	return b
}

// CreatedAt sets the creation instant
func (b *TicketBuilder) CreatedAt(t time.Time) *TicketBuilder {
	b.ticket.CreatedAt = t
	b.ticket.UpdatedAt = t
	return b
}

// RespondedAt records the first response
func (b *TicketBuilder) RespondedAt(t time.Time) *TicketBuilder {
	b.ticket.FirstResponseAt = &t
	return b
}

// ResolvedAt marks the ticket resolved at t
func (b *TicketBuilder) ResolvedAt(t time.Time) *TicketBuilder {
	b.ticket.Status = domain.TicketStatusResolved
	b.ticket.ResolvedAt = &t
	b.ticket.UpdatedAt = t
	return b
}

// Build returns the constructed ticket
func (b *TicketBuilder) Build() domain.Ticket {
	return b.ticket
}

// ========================================
// SLA Rule Builder
// ========================================

// RuleBuilder builds SLARule instances for testing
type RuleBuilder struct {
	rule domain.SLARule
}

// NewRuleBuilder creates an active wildcard rule: 120 min response, 480 min resolution
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{
		rule: domain.SLARule{
			ID:                1,
			Name:              "default",
			FirstResponseTime: 120,
			ResolutionTime:    480,
			IsActive:          true,
			Version:           1,
			CreatedAt:         T0,
			UpdatedAt:         T0,
		},
	}
}

// WithID sets the rule ID
func (b *RuleBuilder) WithID(id int64) *RuleBuilder {
	b.rule.ID = id
	return b
}

// WithName sets the rule name
func (b *RuleBuilder) WithName(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

// ForDepartment scopes the rule to a department
func (b *RuleBuilder) ForDepartment(id string) *RuleBuilder {
	b.rule.DepartmentID = &id
	return b
}

// ForPriorities scopes the rule to priorities
func (b *RuleBuilder) ForPriorities(ps ...domain.TicketPriority) *RuleBuilder {
	b.rule.Priorities = ps
	return b
}

// ForCustomerTypes scopes the rule to customer types
func (b *RuleBuilder) ForCustomerTypes(cts ...string) *RuleBuilder {
	b.rule.CustomerTypes = cts
	return b
}

// WithTimes sets response and resolution thresholds in minutes
func (b *RuleBuilder) WithTimes(response, resolution int) *RuleBuilder {
	b.rule.FirstResponseTime = response
	b.rule.ResolutionTime = resolution
	return b
}

// BusinessHours marks the rule as business-hours-only on the named calendar
func (b *RuleBuilder) BusinessHours(calendar string) *RuleBuilder {
	b.rule.BusinessHoursOnly = true
	b.rule.CalendarName = calendar
	return b
}

// WithPauseConditions restricts allowed pause reasons
func (b *RuleBuilder) WithPauseConditions(reasons ...domain.PauseReason) *RuleBuilder {
	b.rule.PauseConditions = reasons
	return b
}

// WithLevels sets the escalation levels
func (b *RuleBuilder) WithLevels(levels ...domain.EscalationLevel) *RuleBuilder {
	b.rule.EscalationLevels = levels
	return b
}

// Inactive deactivates the rule
func (b *RuleBuilder) Inactive() *RuleBuilder {
	b.rule.IsActive = false
	return b
}

// Build returns the constructed rule
func (b *RuleBuilder) Build() domain.SLARule {
	return b.rule
}

// NotifyLevel builds a notify-department level triggering at the given minute
func NotifyLevel(level, trigger int) domain.EscalationLevel {
	return domain.EscalationLevel{
		Level:              level,
		TriggerTime:        trigger,
		Action:             domain.EscalationActionNotifyDepartment,
		TargetDepartmentID: Ptr("dept-escalations"),
	}
}

// ========================================
// Calendar fixtures
// ========================================

// OfficeCalendar is Mon-Fri 09:00-18:00 UTC with no holidays.
func OfficeCalendar() *domain.BusinessCalendar {
	cal := &domain.BusinessCalendar{Name: "default", Location: time.UTC}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		cal.Windows = append(cal.Windows, domain.WorkingWindow{
			Weekday: wd,
			Start:   9 * time.Hour,
			End:     18 * time.Hour,
		})
	}
	return cal
}
