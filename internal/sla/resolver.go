package sla

import "github.com/helpdesk-sla/sla-service/internal/domain"

const (
	departmentMatchScore   = 2
	priorityMatchScore     = 1
	customerTypeMatchScore = 1
)

// Resolve selects the most specific active rule matching the ticket. Department
// matches count 2, priority and customer type 1 each; ties go to the lowest rule ID.
// It returns nil when nothing matches, meaning the ticket has no SLA obligation.
func Resolve(ticket domain.Ticket, rules []domain.SLARule) *domain.SLARule {
	var (
		best      *domain.SLARule
		bestScore = -1
	)
	for i := range rules {
		rule := &rules[i]
		score, ok := matchScore(ticket, rule)
		if !ok {
			continue
		}
		if score > bestScore || (score == bestScore && rule.ID < best.ID) {
			best, bestScore = rule, score
		}
	}
	if best == nil {
		return nil
	}
	selected := *best
	return &selected
}

func matchScore(ticket domain.Ticket, rule *domain.SLARule) (int, bool) {
	if !rule.IsActive {
		return 0, false
	}
	score := 0
	if rule.DepartmentID != nil {
		if *rule.DepartmentID != ticket.DepartmentID {
			return 0, false
		}
		score += departmentMatchScore
	}
	if len(rule.Priorities) > 0 {
		if !containsPriority(rule.Priorities, ticket.Priority) {
			return 0, false
		}
		score += priorityMatchScore
	}
	if len(rule.CustomerTypes) > 0 {
		if !containsString(rule.CustomerTypes, ticket.CustomerType) {
			return 0, false
		}
		score += customerTypeMatchScore
	}
	return score, true
}

func containsPriority(set []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, candidate := range set {
		if candidate == p {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}
