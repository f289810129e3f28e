package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helpdesk-sla/sla-service/internal/sla"
	apperrors "github.com/helpdesk-sla/sla-service/pkg/util/errorutil"
)

const defaultRetryInterval = 50 * time.Millisecond

// retrier re-runs store reads that fail for transient reasons. Missing rows and
// engine errors are answers, not outages, and are returned at once.
type retrier struct {
	attempts int
	interval time.Duration
}

func newRetrier(attempts int, interval time.Duration) retrier {
	if attempts < 1 {
		attempts = 1
	}
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	return retrier{attempts: attempts, interval: interval}
}

func (r retrier) policy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.interval
	exp.MaxInterval = 20 * r.interval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.attempts-1)), ctx)
}

func retryRead[T any](ctx context.Context, r retrier, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && isPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, r.policy(ctx))
}

func isPermanent(err error) bool {
	var domainErr *apperrors.DomainError
	var cfgErr *sla.ConfigurationError
	switch {
	case errors.Is(err, pgx.ErrNoRows),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sla.ErrAlreadyPaused),
		errors.Is(err, sla.ErrNotPaused),
		errors.Is(err, sla.ErrNonMonotonic),
		errors.Is(err, sla.ErrInvalidPauseReason),
		errors.As(err, &cfgErr),
		errors.As(err, &domainErr),
		isDataException(err):
		return true
	}
	return false
}

// isDataException reports a Postgres class 22 error, such as 22P02 for a
// malformed uuid. Running the same statement again fails the same way.
func isDataException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22")
}
