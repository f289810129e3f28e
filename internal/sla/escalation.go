package sla

import (
	"sort"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// CheckEscalations returns the levels of rule that are due for the ticket and not yet
// in firedLevels, ordered by level ascending. A ticket left unobserved for a long time
// may cross several levels at once; all of them are returned together. Clocks that
// already stopped do not escalate.
func CheckEscalations(ticket domain.Ticket, rule *domain.SLARule, status domain.SLAStatus, firedLevels []int) []domain.EscalationLevel {
	if rule == nil || len(rule.EscalationLevels) == 0 {
		return nil
	}
	if status.TicketID != "" && status.TicketID != ticket.ID {
		return nil
	}

	fired := make(map[int]struct{}, len(firedLevels))
	for _, lvl := range firedLevels {
		fired[lvl] = struct{}{}
	}

	levels := append([]domain.EscalationLevel(nil), rule.EscalationLevels...)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	var due []domain.EscalationLevel
	for _, lvl := range levels {
		if _, done := fired[lvl.Level]; done {
			continue
		}
		elapsed, stopped := status.Elapsed(lvl.BoundClock())
		if stopped {
			continue
		}
		if elapsed >= triggerPoint(rule, lvl) {
			due = append(due, lvl)
		}
	}
	return due
}

// triggerPoint is the elapsed-minute mark at which the level fires.
func triggerPoint(rule *domain.SLARule, lvl domain.EscalationLevel) int {
	if lvl.TriggerBasis() != domain.EscalationBasisBreach {
		return lvl.TriggerTime
	}
	if lvl.BoundClock() == domain.SLAClockResponse {
		return rule.FirstResponseTime + lvl.TriggerTime
	}
	return rule.ResolutionTime + lvl.TriggerTime
}
