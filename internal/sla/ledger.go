package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-sla/sla-service/internal/domain"
)

// PauseStore persists pause intervals. ListByTicket returns intervals ordered by
// StartedAt ascending.
type PauseStore interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.PauseInterval, error)
	Create(ctx context.Context, interval *domain.PauseInterval) error
	Close(ctx context.Context, intervalID string, endedAt time.Time) error
}

// Ledger records clock-stop periods per ticket.
type Ledger struct {
	store  PauseStore
	locker Locker
}

// NewLedger builds a ledger. A nil locker falls back to an in-process keyed mutex.
func NewLedger(store PauseStore, locker Locker) *Ledger {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Ledger{store: store, locker: locker}
}

// Pause opens a pause interval starting at the given instant.
func (l *Ledger) Pause(ctx context.Context, ticketID string, reason domain.PauseReason, at time.Time) (*domain.PauseInterval, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPauseReason, reason)
	}
	unlock, err := l.locker.Lock(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("lock ticket %s: %w", ticketID, err)
	}
	defer unlock()

	intervals, err := l.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if OpenInterval(intervals) != nil {
		return nil, ErrAlreadyPaused
	}
	if latest := latestInstant(intervals); latest != nil && at.Before(*latest) {
		return nil, ErrNonMonotonic
	}

	interval := &domain.PauseInterval{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Reason:    reason,
		StartedAt: at,
	}
	if err := l.store.Create(ctx, interval); err != nil {
		return nil, err
	}
	return interval, nil
}

// Resume closes the ticket's open pause interval at the given instant.
func (l *Ledger) Resume(ctx context.Context, ticketID string, at time.Time) (*domain.PauseInterval, error) {
	unlock, err := l.locker.Lock(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("lock ticket %s: %w", ticketID, err)
	}
	defer unlock()

	intervals, err := l.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	open := OpenInterval(intervals)
	if open == nil {
		return nil, ErrNotPaused
	}
	if at.Before(open.StartedAt) {
		return nil, ErrNonMonotonic
	}
	if err := l.store.Close(ctx, open.ID, at); err != nil {
		return nil, err
	}
	closed := *open
	closed.EndedAt = &at
	return &closed, nil
}

// Intervals lists every pause interval of a ticket, open or closed.
func (l *Ledger) Intervals(ctx context.Context, ticketID string) ([]domain.PauseInterval, error) {
	return l.store.ListByTicket(ctx, ticketID)
}

// TotalPausedMinutes sums the overlap of the ticket's pauses with
// [windowStart, windowEnd]. An open interval is treated as ending at asOf.
func (l *Ledger) TotalPausedMinutes(ctx context.Context, ticketID string, asOf, windowStart, windowEnd time.Time) (int, error) {
	intervals, err := l.store.ListByTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	return floorMinutes(PausedOverlap(intervals, asOf, windowStart, windowEnd)), nil
}

// OpenInterval returns the interval without an end, if any.
func OpenInterval(intervals []domain.PauseInterval) *domain.PauseInterval {
	for i := range intervals {
		if intervals[i].IsOpen() {
			return &intervals[i]
		}
	}
	return nil
}

// PausedOverlap is the wall-clock time the intervals overlap the window.
func PausedOverlap(intervals []domain.PauseInterval, asOf, windowStart, windowEnd time.Time) time.Duration {
	var total time.Duration
	for _, seg := range pausedSegments(intervals, asOf, windowStart, windowEnd) {
		total += seg[1].Sub(seg[0])
	}
	return total
}

// PausedBusinessDuration measures the same overlap on a business calendar.
func PausedBusinessDuration(intervals []domain.PauseInterval, asOf, windowStart, windowEnd time.Time, cal *domain.BusinessCalendar) (time.Duration, error) {
	var total time.Duration
	for _, seg := range pausedSegments(intervals, asOf, windowStart, windowEnd) {
		d, err := BusinessDuration(seg[0], seg[1], cal)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

func pausedSegments(intervals []domain.PauseInterval, asOf, windowStart, windowEnd time.Time) [][2]time.Time {
	var segments [][2]time.Time
	for _, iv := range intervals {
		end := asOf
		if iv.EndedAt != nil {
			end = *iv.EndedAt
		}
		start := iv.StartedAt
		if windowStart.After(start) {
			start = windowStart
		}
		if windowEnd.Before(end) {
			end = windowEnd
		}
		if end.After(start) {
			segments = append(segments, [2]time.Time{start, end})
		}
	}
	return segments
}

func latestInstant(intervals []domain.PauseInterval) *time.Time {
	var latest *time.Time
	for i := range intervals {
		candidate := intervals[i].StartedAt
		if intervals[i].EndedAt != nil {
			candidate = *intervals[i].EndedAt
		}
		if latest == nil || candidate.After(*latest) {
			latest = &candidate
		}
	}
	return latest
}
