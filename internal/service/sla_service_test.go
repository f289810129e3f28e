package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/observability"
	"github.com/helpdesk-sla/sla-service/internal/repository"
	"github.com/helpdesk-sla/sla-service/internal/repository/memory"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	"github.com/helpdesk-sla/sla-service/internal/testhelpers"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// flakyTickets fails the first n reads with a transient error.
type flakyTickets struct {
	repository.TicketRepository
	failures atomic.Int32
}

func (f *flakyTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.TicketRepository.GetByID(ctx, id)
}

// uuidTickets rejects every id the way a uuid column does and counts the reads.
type uuidTickets struct {
	repository.TicketRepository
	reads atomic.Int32
}

func (u *uuidTickets) GetByID(context.Context, string) (*domain.Ticket, error) {
	u.reads.Add(1)
	return nil, &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}
}

// failingCommits rejects the next RecordFirings call when armed.
type failingCommits struct {
	*memory.EscalationStore
	failNext atomic.Bool
}

func (f *failingCommits) RecordFirings(ctx context.Context, firings []domain.EscalationFiring) error {
	if f.failNext.CompareAndSwap(true, false) {
		return errors.New("transaction aborted")
	}
	return f.EscalationStore.RecordFirings(ctx, firings)
}

type slaFixture struct {
	svc         *SLAService
	clock       *fakeClock
	tickets     *memory.TicketStore
	pauses      *memory.PauseStore
	escalations *failingCommits
	events      *recorder
}

type fixtureOption func(*SLADependencies)

func newSLAFixture(t *testing.T, rules []domain.SLARule, tickets []domain.Ticket, opts ...fixtureOption) *slaFixture {
	t.Helper()
	f := &slaFixture{
		clock:       &fakeClock{now: testhelpers.T0},
		tickets:     memory.NewTicketStore(tickets...),
		pauses:      memory.NewPauseStore(),
		escalations: &failingCommits{EscalationStore: memory.NewEscalationStore()},
		events:      &recorder{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{events.EventSLAPaused, events.EventSLAResumed, events.EventSLAEscalated} {
		dispatcher.Subscribe(et, f.events.handle)
	}

	deps := SLADependencies{
		TicketRepo:       f.tickets,
		RuleRepo:         memory.NewRuleStore(rules...),
		EscalationRepo:   f.escalations,
		PauseStore:       f.pauses,
		Calendars:        sla.Calendars{sla.DefaultCalendarName: testhelpers.OfficeCalendar()},
		Dispatcher:       dispatcher,
		Metrics:          observability.NewMetrics(),
		Concurrency:      4,
		RetryMaxAttempts: 3,
		RetryInterval:    time.Millisecond,
		Clock:            f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewSLAService(deps)
	return f
}

func requireDomainCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
	assert.Equal(t, status, de.HTTPStatus)
}

func TestGetStatus(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithTimes(120, 480).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	f.clock.Set(testhelpers.At(100))

	status, err := f.svc.GetStatus(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SLAStateWarning, status.ResponseStatus)
	assert.Equal(t, domain.SLAStateWithin, status.ResolutionStatus)
	assert.Equal(t, domain.SLAStateWarning, status.Overall)
	assert.Equal(t, 20, status.ResponseTimeRemaining)
	assert.Equal(t, testhelpers.At(100), status.EvaluatedAt)
}

func TestGetStatusUnknownTicket(t *testing.T) {
	f := newSLAFixture(t, nil, nil)
	_, err := f.svc.GetStatus(context.Background(), "missing")
	requireDomainCode(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestGetStatusWithoutMatchingRule(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().ForDepartment("dept-billing").Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	f.clock.Set(testhelpers.At(10_000))

	status, err := f.svc.GetStatus(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Nil(t, status.RuleID)
	assert.Equal(t, domain.SLAStateNotApplicable, status.Overall)
}

func TestGetStatusConfigurationError(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().BusinessHours("apac").Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})

	_, err := f.svc.GetStatus(context.Background(), "ticket-1")
	requireDomainCode(t, err, apperrors.CodeSLAConfiguration, http.StatusInternalServerError)
}

func TestGetStatusRetriesTransientReads(t *testing.T) {
	ticket := testhelpers.NewTicketBuilder().Build()
	rules := []domain.SLARule{testhelpers.NewRuleBuilder().Build()}

	flaky := &flakyTickets{TicketRepository: memory.NewTicketStore(ticket)}
	flaky.failures.Store(2)
	f := newSLAFixture(t, rules, nil, func(d *SLADependencies) { d.TicketRepo = flaky })

	status, err := f.svc.GetStatus(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "ticket-1", status.TicketID)

	flaky.failures.Store(5)
	_, err = f.svc.GetStatus(context.Background(), "ticket-1")
	requireDomainCode(t, err, apperrors.CodeInternal, http.StatusInternalServerError)
}

func TestGetStatusMalformedIDIsNotFoundWithoutRetry(t *testing.T) {
	tickets := &uuidTickets{TicketRepository: memory.NewTicketStore()}
	f := newSLAFixture(t, nil, nil, func(d *SLADependencies) { d.TicketRepo = tickets })

	_, err := f.svc.GetStatus(context.Background(), "not-a-uuid")
	requireDomainCode(t, err, apperrors.CodeNotFound, http.StatusNotFound)
	assert.Equal(t, int32(1), tickets.reads.Load())
}

func TestPauseAndResume(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithTimes(120, 480).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	ctx := context.Background()
	actor := StaffActor("agent-7")

	f.clock.Set(testhelpers.At(10))
	interval, err := f.svc.Pause(ctx, actor, "ticket-1", domain.PauseReasonWaitingCustomer)
	require.NoError(t, err)
	assert.Equal(t, testhelpers.At(10), interval.StartedAt)

	f.clock.Set(testhelpers.At(30))
	status, err := f.svc.GetStatus(ctx, "ticket-1")
	require.NoError(t, err)
	assert.True(t, status.IsPaused)
	assert.Equal(t, 10, status.ResponseElapsed)

	f.clock.Set(testhelpers.At(40))
	closed, err := f.svc.Resume(ctx, actor, "ticket-1")
	require.NoError(t, err)
	require.NotNil(t, closed.EndedAt)
	assert.Equal(t, testhelpers.At(40), *closed.EndedAt)

	f.clock.Set(testhelpers.At(100))
	status, err = f.svc.GetStatus(ctx, "ticket-1")
	require.NoError(t, err)
	assert.False(t, status.IsPaused)
	assert.Equal(t, 70, status.ResponseElapsed)
	assert.Equal(t, domain.SLAStateWithin, status.ResponseStatus)

	paused := f.events.ofType(events.EventSLAPaused)
	require.Len(t, paused, 1)
	assert.Equal(t, actor, paused[0].Actor)
	resumed := f.events.ofType(events.EventSLAResumed)
	require.Len(t, resumed, 1)
	payload, ok := resumed[0].Payload.(events.SLAResumedPayload)
	require.True(t, ok)
	assert.Equal(t, 30, payload.PausedMinutes)

	intervals, err := f.svc.ListPauses(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Len(t, intervals, 1)
}

func TestPauseErrors(t *testing.T) {
	restricted := testhelpers.NewRuleBuilder().
		ForPriorities(domain.TicketPriorityCritical).
		WithPauseConditions(domain.PauseReasonWaitingThirdParty).
		Build()
	tickets := []domain.Ticket{
		testhelpers.NewTicketBuilder().Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-done").ResolvedAt(testhelpers.At(5)).Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-crit").WithPriority(domain.TicketPriorityCritical).Build(),
	}
	f := newSLAFixture(t, []domain.SLARule{restricted}, tickets)
	ctx := context.Background()
	actor := StaffActor("agent-7")

	_, err := f.svc.Pause(ctx, actor, "ticket-1", domain.PauseReason("coffee"))
	requireDomainCode(t, err, apperrors.CodeValidationFailed, http.StatusBadRequest)

	_, err = f.svc.Pause(ctx, actor, "missing", domain.PauseReasonWaitingCustomer)
	requireDomainCode(t, err, apperrors.CodeNotFound, http.StatusNotFound)

	_, err = f.svc.Pause(ctx, actor, "ticket-done", domain.PauseReasonWaitingCustomer)
	requireDomainCode(t, err, apperrors.CodeConflict, http.StatusConflict)

	_, err = f.svc.Pause(ctx, actor, "ticket-crit", domain.PauseReasonWaitingCustomer)
	requireDomainCode(t, err, apperrors.CodeValidationFailed, http.StatusBadRequest)

	_, err = f.svc.Pause(ctx, actor, "ticket-crit", domain.PauseReasonWaitingThirdParty)
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, actor, "ticket-crit", domain.PauseReasonWaitingThirdParty)
	requireDomainCode(t, err, apperrors.CodeSLAAlreadyPaused, http.StatusConflict)

	_, err = f.svc.Resume(ctx, actor, "ticket-1")
	requireDomainCode(t, err, apperrors.CodeSLANotPaused, http.StatusConflict)

	assert.Len(t, f.events.ofType(events.EventSLAPaused), 1)
}

func TestCheckEscalationsFiresEachLevelOnce(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(
		testhelpers.NotifyLevel(1, 60),
		testhelpers.NotifyLevel(2, 120),
		testhelpers.NotifyLevel(3, 240),
	).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	ctx := context.Background()

	f.clock.Set(testhelpers.At(30))
	firings, err := f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Empty(t, firings)

	f.clock.Set(testhelpers.At(130))
	firings, err = f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	require.Len(t, firings, 2)
	assert.Equal(t, 1, firings[0].Level)
	assert.Equal(t, 2, firings[1].Level)
	assert.Equal(t, testhelpers.At(130), firings[0].FiredAt)

	firings, err = f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Empty(t, firings)

	escalated := f.events.ofType(events.EventSLAEscalated)
	require.Len(t, escalated, 2)
	payload, ok := escalated[1].Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Level)
	assert.Equal(t, domain.EscalationActionNotifyDepartment, payload.Action)
	assert.Equal(t, domain.SLAClockResolution, payload.Clock)
	assert.Equal(t, 130, payload.ElapsedMinutes)

	history, err := f.escalations.ListByTicket(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestListEscalations(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(
		testhelpers.NotifyLevel(1, 60),
		testhelpers.NotifyLevel(2, 120),
	).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{
		testhelpers.NewTicketBuilder().Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-2").CreatedAt(testhelpers.At(100)).Build(),
	})
	ctx := context.Background()

	history, err := f.svc.ListEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	f.clock.Set(testhelpers.At(90))
	_, err = f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	f.clock.Set(testhelpers.At(170))
	_, err = f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	_, err = f.svc.CheckEscalations(ctx, "ticket-2")
	require.NoError(t, err)

	history, err = f.svc.ListEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Level)
	assert.Equal(t, testhelpers.At(90), history[0].FiredAt)
	assert.Equal(t, 2, history[1].Level)
	assert.Equal(t, testhelpers.At(170), history[1].FiredAt)

	_, err = f.svc.ListEscalations(ctx, "missing")
	requireDomainCode(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestCheckEscalationsRefiresAfterFailedCommit(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(testhelpers.NotifyLevel(1, 60)).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	ctx := context.Background()
	f.clock.Set(testhelpers.At(90))

	f.escalations.failNext.Store(true)
	_, err := f.svc.CheckEscalations(ctx, "ticket-1")
	requireDomainCode(t, err, apperrors.CodeInternal, http.StatusInternalServerError)
	assert.Len(t, f.events.ofType(events.EventSLAEscalated), 1)

	firings, err := f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Len(t, firings, 1)
	assert.Len(t, f.events.ofType(events.EventSLAEscalated), 2)

	firings, err = f.svc.CheckEscalations(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Empty(t, firings)
}

func TestCheckEscalationsConcurrentCallersFireOnce(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(testhelpers.NotifyLevel(1, 60)).Build()
	f := newSLAFixture(t, []domain.SLARule{rule}, []domain.Ticket{testhelpers.NewTicketBuilder().Build()})
	f.clock.Set(testhelpers.At(90))

	var (
		wg    sync.WaitGroup
		total atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			firings, err := f.svc.CheckEscalations(context.Background(), "ticket-1")
			if assert.NoError(t, err) {
				total.Add(int32(len(firings)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), total.Load())
	assert.Len(t, f.events.ofType(events.EventSLAEscalated), 1)
}

func TestSweepEscalations(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(testhelpers.NotifyLevel(1, 60)).Build()
	tickets := []domain.Ticket{
		testhelpers.NewTicketBuilder().WithID("ticket-old").Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-new").CreatedAt(testhelpers.At(100)).Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-busy").WithStatus(domain.TicketStatusInProgress).Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-done").ResolvedAt(testhelpers.At(20)).Build(),
	}
	f := newSLAFixture(t, []domain.SLARule{rule}, tickets)
	f.clock.Set(testhelpers.At(130))

	result, err := f.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Tickets: 3, Fired: 2, Failed: 0}, result)

	again, err := f.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Tickets: 3, Fired: 0, Failed: 0}, again)
}

func TestSweepEscalationsCountsFailures(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithLevels(testhelpers.NotifyLevel(1, 60)).Build()
	tickets := []domain.Ticket{
		testhelpers.NewTicketBuilder().WithID("ticket-a").Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-b").Build(),
	}
	f := newSLAFixture(t, []domain.SLARule{rule}, tickets, func(d *SLADependencies) { d.Concurrency = 1 })
	f.clock.Set(testhelpers.At(90))
	f.escalations.failNext.Store(true)

	result, err := f.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Tickets)
	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, 1, result.Failed)
}

func TestListOpenStatuses(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().Build()
	tickets := []domain.Ticket{
		testhelpers.NewTicketBuilder().WithID("ticket-a").Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-b").WithDepartment("dept-billing").Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-c").WithPriority(domain.TicketPriorityHigh).Build(),
		testhelpers.NewTicketBuilder().WithID("ticket-d").ResolvedAt(testhelpers.At(5)).Build(),
	}
	f := newSLAFixture(t, []domain.SLARule{rule}, tickets)
	f.clock.Set(testhelpers.At(30))
	ctx := context.Background()

	all, err := f.svc.ListOpenStatuses(ctx, StatusFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, st := range all {
		ids = append(ids, st.TicketID)
	}
	assert.Equal(t, []string{"ticket-a", "ticket-b", "ticket-c"}, ids)

	support := "dept-support"
	filtered, err := f.svc.ListOpenStatuses(ctx, StatusFilter{
		DepartmentID: &support,
		Priorities:   []domain.TicketPriority{domain.TicketPriorityHigh},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "ticket-c", filtered[0].TicketID)
}

func TestReport(t *testing.T) {
	rule := testhelpers.NewRuleBuilder().WithTimes(120, 480).ForDepartment("dept-support").Build()
	tickets := []domain.Ticket{
		testhelpers.NewTicketBuilder().WithID("at-risk").CreatedAt(testhelpers.At(200)).Build(),
		testhelpers.NewTicketBuilder().WithID("met").RespondedAt(testhelpers.At(30)).ResolvedAt(testhelpers.At(200)).Build(),
		testhelpers.NewTicketBuilder().WithID("late-reply").RespondedAt(testhelpers.At(150)).Build(),
		testhelpers.NewTicketBuilder().WithID("fresh").CreatedAt(testhelpers.At(290)).Build(),
		testhelpers.NewTicketBuilder().WithID("uncovered").WithDepartment("dept-legal").Build(),
	}
	f := newSLAFixture(t, []domain.SLARule{rule}, tickets)
	f.clock.Set(testhelpers.At(300))

	report, err := f.svc.Report(context.Background(), StatusFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Total)
	// "met" stopped both clocks in time and counts as within
	assert.Equal(t, 2, report.Within)
	assert.Equal(t, 1, report.AtRisk)
	assert.Equal(t, 1, report.Breached)
	assert.Equal(t, 1, report.NotApplicable)
	assert.Equal(t, 2, report.RespondedTickets)
	assert.InDelta(t, 90.0, report.AvgResponseMinutes, 0.001)
	assert.Equal(t, 1, report.ResolvedTickets)
	assert.InDelta(t, 200.0, report.AvgResolutionMinutes, 0.001)
	assert.Equal(t, testhelpers.At(300), report.GeneratedAt)
}
