package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/observability"
	"github.com/helpdesk-sla/sla-service/internal/repository"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

const defaultConcurrency = 8

var openStatuses = []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress}

// SLAService coordinates status evaluation, the pause ledger and escalations.
type SLAService struct {
	tickets     repository.TicketRepository
	rules       repository.SLARuleRepository
	escalations repository.EscalationRepository
	ledger      *sla.Ledger
	locker      sla.Locker
	evaluator   *sla.Evaluator
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	retry       retrier
	concurrency int
	now         func() time.Time
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	TicketRepo     repository.TicketRepository
	RuleRepo       repository.SLARuleRepository
	EscalationRepo repository.EscalationRepository
	PauseStore     sla.PauseStore
	Locker         sla.Locker
	Calendars      sla.Calendars
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger

	Concurrency      int
	RetryMaxAttempts int
	RetryInterval    time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// StatusFilter narrows status listings and reports.
type StatusFilter struct {
	DepartmentID *string
	Priorities   []domain.TicketPriority
}

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	Tickets int
	Fired   int
	Failed  int
}

// SLAReport aggregates SLA performance over a set of tickets.
type SLAReport struct {
	Total                int
	Within               int
	AtRisk               int
	Breached             int
	NotApplicable        int
	AvgResponseMinutes   float64
	AvgResolutionMinutes float64
	RespondedTickets     int
	ResolvedTickets      int
	GeneratedAt          time.Time
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	locker := deps.Locker
	if locker == nil {
		locker = sla.NewKeyedMutex()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SLAService{
		tickets:     deps.TicketRepo,
		rules:       deps.RuleRepo,
		escalations: deps.EscalationRepo,
		ledger:      sla.NewLedger(deps.PauseStore, locker),
		locker:      locker,
		evaluator:   sla.NewEvaluator(deps.Calendars),
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		retry:       newRetrier(deps.RetryMaxAttempts, deps.RetryInterval),
		concurrency: concurrency,
		now:         clock,
	}
}

// GetStatus evaluates a single ticket as of now.
func (s *SLAService) GetStatus(ctx context.Context, ticketID string) (*domain.SLAStatus, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.evaluate(ctx, *ticket, sla.Resolve(*ticket, rules))
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// ListOpenStatuses evaluates every open or in-progress ticket matching the filter.
// Results keep the repository order.
func (s *SLAService) ListOpenStatuses(ctx context.Context, filter StatusFilter) ([]domain.SLAStatus, error) {
	tickets, err := s.listTickets(ctx, repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		Statuses:     openStatuses,
		Priorities:   filter.Priorities,
	})
	if err != nil {
		return nil, err
	}
	return s.evaluateAll(ctx, tickets)
}

// Report summarizes SLA outcomes for all tickets matching the filter, closed ones
// included. Averages cover only clocks that already stopped.
func (s *SLAService) Report(ctx context.Context, filter StatusFilter) (*SLAReport, error) {
	tickets, err := s.listTickets(ctx, repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		Priorities:   filter.Priorities,
	})
	if err != nil {
		return nil, err
	}
	statuses, err := s.evaluateAll(ctx, tickets)
	if err != nil {
		return nil, err
	}

	report := &SLAReport{Total: len(statuses), GeneratedAt: s.now().UTC()}
	var responseSum, resolutionSum int
	for _, st := range statuses {
		overall := st.Overall
		// both clocks stopped before their thresholds: the SLA was met
		if st.RuleID != nil && overall == domain.SLAStateNotApplicable {
			overall = domain.SLAStateWithin
		}
		switch overall {
		case domain.SLAStateWithin:
			report.Within++
		case domain.SLAStateWarning:
			report.AtRisk++
		case domain.SLAStateBreached:
			report.Breached++
		default:
			report.NotApplicable++
		}
		if st.RuleID == nil {
			continue
		}
		if st.ResponseStopped {
			report.RespondedTickets++
			responseSum += st.ResponseElapsed
		}
		if st.ResolutionStopped {
			report.ResolvedTickets++
			resolutionSum += st.ResolutionElapsed
		}
	}
	if report.RespondedTickets > 0 {
		report.AvgResponseMinutes = float64(responseSum) / float64(report.RespondedTickets)
	}
	if report.ResolvedTickets > 0 {
		report.AvgResolutionMinutes = float64(resolutionSum) / float64(report.ResolvedTickets)
	}
	return report, nil
}

// Pause stops the ticket's SLA clocks now.
func (s *SLAService) Pause(ctx context.Context, actor events.Actor, ticketID string, reason domain.PauseReason) (*domain.PauseInterval, error) {
	interval, err := s.pause(ctx, ticketID, reason)
	s.metrics.RecordPauseOp("pause", err)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventSLAPaused,
		TicketID: ticketID,
		Actor:    actor,
		Payload: events.SLAPausedPayload{
			IntervalID: interval.ID,
			Reason:     interval.Reason,
			StartedAt:  interval.StartedAt,
		},
	})
	s.logger.Info("sla paused", zap.String("ticket_id", ticketID), zap.String("reason", string(reason)))
	return interval, nil
}

func (s *SLAService) pause(ctx context.Context, ticketID string, reason domain.PauseReason) (*domain.PauseInterval, error) {
	if !reason.Valid() {
		return nil, apperrors.MapError(fmt.Errorf("%w: %q", sla.ErrInvalidPauseReason, reason))
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewConflict("ticket is already "+string(ticket.Status), map[string]any{"ticket_id": ticketID})
	}
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	if rule := sla.Resolve(*ticket, rules); rule != nil && !rule.AllowsPause(reason) {
		return nil, apperrors.NewValidationError("pause reason not allowed by sla rule", map[string]any{
			"rule_id": rule.ID,
			"reason":  reason,
			"allowed": rule.PauseConditions,
		})
	}

	interval, err := s.ledger.Pause(ctx, ticketID, reason, s.now().UTC())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return interval, nil
}

// Resume restarts the ticket's SLA clocks now.
func (s *SLAService) Resume(ctx context.Context, actor events.Actor, ticketID string) (*domain.PauseInterval, error) {
	interval, err := s.resume(ctx, ticketID)
	s.metrics.RecordPauseOp("resume", err)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventSLAResumed,
		TicketID: ticketID,
		Actor:    actor,
		Payload: events.SLAResumedPayload{
			IntervalID:    interval.ID,
			Reason:        interval.Reason,
			StartedAt:     interval.StartedAt,
			EndedAt:       *interval.EndedAt,
			PausedMinutes: int(interval.EndedAt.Sub(interval.StartedAt) / time.Minute),
		},
	})
	s.logger.Info("sla resumed", zap.String("ticket_id", ticketID))
	return interval, nil
}

func (s *SLAService) resume(ctx context.Context, ticketID string) (*domain.PauseInterval, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	interval, err := s.ledger.Resume(ctx, ticketID, s.now().UTC())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return interval, nil
}

// ListPauses returns the ticket's ledger, oldest first.
func (s *SLAService) ListPauses(ctx context.Context, ticketID string) ([]domain.PauseInterval, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	intervals, err := retryRead(ctx, s.retry, func() ([]domain.PauseInterval, error) {
		return s.ledger.Intervals(ctx, ticketID)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return intervals, nil
}

// ListEscalations returns the escalation levels already fired for the ticket.
func (s *SLAService) ListEscalations(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	firings, err := retryRead(ctx, s.retry, func() ([]domain.EscalationFiring, error) {
		return s.escalations.ListByTicket(ctx, ticketID)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return firings, nil
}

// CheckEscalations fires every escalation level the ticket newly reached and returns
// the firings. A level never fires twice for the same ticket and rule.
func (s *SLAService) CheckEscalations(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	return s.checkTicket(ctx, *ticket, rules)
}

// SweepEscalations checks every open ticket. Failures on one ticket are logged and
// counted; they do not stop the sweep.
func (s *SLAService) SweepEscalations(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	tickets, err := s.listTickets(ctx, repository.TicketFilter{Statuses: openStatuses})
	if err != nil {
		return SweepResult{}, err
	}
	rules, err := s.activeRules(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var fired, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range tickets {
		ticket := tickets[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			firings, err := s.checkTicket(gctx, ticket, rules)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("escalation check failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				return nil
			}
			fired.Add(int64(len(firings)))
			return nil
		})
	}
	waitErr := g.Wait()

	result := SweepResult{Tickets: len(tickets), Fired: int(fired.Load()), Failed: int(failed.Load())}
	s.metrics.RecordSweep(result.Tickets, time.Since(started))
	s.logger.Info("escalation sweep finished",
		zap.Int("tickets", result.Tickets),
		zap.Int("fired", result.Fired),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(started)))
	if waitErr != nil {
		return result, waitErr
	}
	return result, ctx.Err()
}

// checkTicket runs under the ticket lock so two checkers cannot both fire a level.
// Events go out before the firing records are committed; a failed commit means the
// levels fire again on the next check rather than never.
func (s *SLAService) checkTicket(ctx context.Context, ticket domain.Ticket, rules []domain.SLARule) ([]domain.EscalationFiring, error) {
	rule := sla.Resolve(ticket, rules)
	if rule == nil || len(rule.EscalationLevels) == 0 {
		return nil, nil
	}

	unlock, err := s.locker.Lock(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(fmt.Errorf("lock ticket %s: %w", ticket.ID, err))
	}
	defer unlock()

	status, err := s.evaluate(ctx, ticket, rule)
	if err != nil {
		return nil, err
	}
	fired, err := retryRead(ctx, s.retry, func() ([]int, error) {
		return s.escalations.FiredLevels(ctx, ticket.ID, rule.ID)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	due := sla.CheckEscalations(ticket, rule, status, fired)
	if len(due) == 0 {
		return nil, nil
	}

	firedAt := s.now().UTC()
	firings := make([]domain.EscalationFiring, 0, len(due))
	for _, lvl := range due {
		firing := domain.EscalationFiring{
			ID:                 uuid.NewString(),
			TicketID:           ticket.ID,
			RuleID:             rule.ID,
			Level:              lvl.Level,
			Action:             lvl.Action,
			TargetUserID:       lvl.TargetUserID,
			TargetDepartmentID: lvl.TargetDepartmentID,
			FiredAt:            firedAt,
		}
		firings = append(firings, firing)

		elapsed, _ := status.Elapsed(lvl.BoundClock())
		s.publishEvent(ctx, events.Event{
			Type:      events.EventSLAEscalated,
			TicketID:  ticket.ID,
			Timestamp: firedAt,
			Payload: events.SLAEscalatedPayload{
				RuleID:             rule.ID,
				RuleName:           rule.Name,
				Level:              lvl.Level,
				Action:             lvl.Action,
				TargetUserID:       lvl.TargetUserID,
				TargetDepartmentID: lvl.TargetDepartmentID,
				Clock:              lvl.BoundClock(),
				ElapsedMinutes:     elapsed,
				Overall:            status.Overall,
			},
		})
		s.metrics.RecordEscalation(lvl.Action)
	}

	if err := s.escalations.RecordFirings(ctx, firings); err != nil {
		s.logger.Error("escalation commit failed; levels will refire",
			zap.String("ticket_id", ticket.ID),
			zap.Int64("rule_id", rule.ID),
			zap.Error(err))
		return nil, apperrors.MapError(err)
	}
	return firings, nil
}

func (s *SLAService) evaluateAll(ctx context.Context, tickets []domain.Ticket) ([]domain.SLAStatus, error) {
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.SLAStatus, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range tickets {
		g.Go(func() error {
			status, err := s.evaluate(gctx, tickets[i], sla.Resolve(tickets[i], rules))
			if err != nil {
				return err
			}
			statuses[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (s *SLAService) evaluate(ctx context.Context, ticket domain.Ticket, rule *domain.SLARule) (domain.SLAStatus, error) {
	pauses, err := retryRead(ctx, s.retry, func() ([]domain.PauseInterval, error) {
		return s.ledger.Intervals(ctx, ticket.ID)
	})
	if err != nil {
		return domain.SLAStatus{}, apperrors.MapError(err)
	}
	status, err := s.evaluator.Evaluate(ticket, rule, pauses, s.now().UTC())
	if err != nil {
		if sla.IsConfigurationError(err) {
			s.logger.Error("sla configuration error", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		return domain.SLAStatus{}, apperrors.MapError(err)
	}
	s.metrics.RecordEvaluation(status.Overall)
	return status, nil
}

func (s *SLAService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := retryRead(ctx, s.retry, func() (*domain.Ticket, error) {
		return s.tickets.GetByID(ctx, ticketID)
	})
	if err != nil {
		// a malformed id cannot name any ticket
		if errors.Is(err, pgx.ErrNoRows) || isDataException(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *SLAService) listTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := retryRead(ctx, s.retry, func() ([]domain.Ticket, error) {
		return s.tickets.ListWithFilter(ctx, filter)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func (s *SLAService) activeRules(ctx context.Context) ([]domain.SLARule, error) {
	rules, err := retryRead(ctx, s.retry, func() ([]domain.SLARule, error) {
		return s.rules.ListActive(ctx)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

func (s *SLAService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

// StaffActor builds the event actor for an authenticated staff member.
func StaffActor(staffID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeStaff, SubjectID: staffID}
}
