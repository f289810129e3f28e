package sla

import (
	"time"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// WarningThresholdPercent is the share of a clock's threshold after which it is at risk.
const WarningThresholdPercent = 80

// Evaluator computes SLA status for a ticket. It holds only immutable configuration,
// so a single instance can be shared across goroutines.
type Evaluator struct {
	calendars Calendars
}

// NewEvaluator builds an evaluator over the configured business calendars.
func NewEvaluator(calendars Calendars) *Evaluator {
	return &Evaluator{calendars: calendars}
}

type clockResult struct {
	state     domain.SLAState
	remaining int
	elapsed   int
	stopped   bool
}

// Evaluate derives the status of both SLA clocks as of now. A nil rule yields
// not_applicable for both clocks. pauses must belong to the ticket.
func (e *Evaluator) Evaluate(ticket domain.Ticket, rule *domain.SLARule, pauses []domain.PauseInterval, now time.Time) (domain.SLAStatus, error) {
	status := domain.SLAStatus{
		TicketID:         ticket.ID,
		ResponseStatus:   domain.SLAStateNotApplicable,
		ResolutionStatus: domain.SLAStateNotApplicable,
		Overall:          domain.SLAStateNotApplicable,
		EvaluatedAt:      now,
	}
	if open := OpenInterval(pauses); open != nil {
		reason := open.Reason
		status.IsPaused = true
		status.ActivePauseReason = &reason
	}
	if rule == nil {
		return status, nil
	}
	ruleID := rule.ID
	status.RuleID = &ruleID

	cal, err := e.calendarFor(rule)
	if err != nil {
		return domain.SLAStatus{}, err
	}
	if rule.FirstResponseTime <= 0 || rule.ResolutionTime <= 0 {
		return domain.SLAStatus{}, configErrorf("rule "+rule.Name, "thresholds must be positive")
	}

	resolutionEnd := ticket.ResolutionInstant()
	responseEnd := ticket.FirstResponseAt
	if responseEnd == nil {
		// resolving a ticket answers it
		responseEnd = resolutionEnd
	}

	resp, err := evaluateClock(ticket.CreatedAt, responseEnd, rule.FirstResponseTime, pauses, cal, now)
	if err != nil {
		return domain.SLAStatus{}, err
	}
	res, err := evaluateClock(ticket.CreatedAt, resolutionEnd, rule.ResolutionTime, pauses, cal, now)
	if err != nil {
		return domain.SLAStatus{}, err
	}

	status.ResponseStatus = resp.state
	status.ResponseTimeRemaining = resp.remaining
	status.ResponseElapsed = resp.elapsed
	status.ResponseStopped = resp.stopped
	status.ResolutionStatus = res.state
	status.ResolutionTimeRemaining = res.remaining
	status.ResolutionElapsed = res.elapsed
	status.ResolutionStopped = res.stopped
	status.Overall = Worst(resp.state, res.state)
	return status, nil
}

func (e *Evaluator) calendarFor(rule *domain.SLARule) (*domain.BusinessCalendar, error) {
	if !rule.BusinessHoursOnly {
		return nil, nil
	}
	cal, err := e.calendars.Lookup(rule.CalendarName)
	if err != nil {
		return nil, err
	}
	if err := ValidateCalendar(cal); err != nil {
		return nil, err
	}
	return cal, nil
}

func evaluateClock(start time.Time, terminal *time.Time, threshold int, pauses []domain.PauseInterval, cal *domain.BusinessCalendar, now time.Time) (clockResult, error) {
	end := now
	stopped := terminal != nil
	if stopped {
		end = *terminal
	}

	business, err := BusinessDuration(start, end, cal)
	if err != nil {
		return clockResult{}, err
	}
	var paused time.Duration
	if cal != nil {
		paused, err = PausedBusinessDuration(pauses, now, start, end, cal)
		if err != nil {
			return clockResult{}, err
		}
	} else {
		paused = PausedOverlap(pauses, now, start, end)
	}

	// floor once, after subtracting, so an open pause holds elapsed steady
	// even when it started mid-minute
	elapsed := floorMinutes(business - paused)
	result := clockResult{
		state:     Classify(elapsed, threshold),
		remaining: threshold - elapsed,
		elapsed:   elapsed,
		stopped:   stopped,
	}
	// met before the deadline: nothing left to track
	if stopped && result.state != domain.SLAStateBreached {
		result.state = domain.SLAStateNotApplicable
		result.remaining = 0
	}
	return result, nil
}

// Classify maps elapsed minutes against a positive threshold. Boundaries are
// inclusive: exactly 80% is warning, exactly 100% is breached.
func Classify(elapsed, threshold int) domain.SLAState {
	switch {
	case elapsed >= threshold:
		return domain.SLAStateBreached
	case elapsed*100 >= threshold*WarningThresholdPercent:
		return domain.SLAStateWarning
	default:
		return domain.SLAStateWithin
	}
}

// Worst returns the most severe applicable state, or not_applicable if none applies.
func Worst(states ...domain.SLAState) domain.SLAState {
	worst := domain.SLAStateNotApplicable
	for _, s := range states {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}
