package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// RetryPolicy bounds the retry loop around registry calls.
type RetryPolicy struct {
	// MaxAttempts counts the first try.
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CallTimeout bounds a single attempt.
	CallTimeout time.Duration
}

// DefaultRetryPolicy is used by the CLI.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     6,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		CallTimeout:     30 * time.Second,
	}
}

// IsRetryable reports whether err is transient: the registry was unreachable
// or a concurrent writer won the sequence.
func IsRetryable(err error) bool {
	return errors.Is(err, interfaces.ErrRegistryUnavailable) || errors.Is(err, interfaces.ErrReservationConflict)
}

// Retrying decorates a NameRegistry with jittered exponential backoff.
// Non-retryable errors stop the loop immediately.
type Retrying struct {
	next   interfaces.NameRegistry
	policy RetryPolicy
	log    *slog.Logger
}

func NewRetrying(next interfaces.NameRegistry, policy RetryPolicy, log *slog.Logger) *Retrying {
	if log == nil {
		log = common.DiscardLogger()
	}
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	return &Retrying{next: next, policy: policy, log: log}
}

func (r *Retrying) ReserveName(ctx context.Context, domain interfaces.DomainConfig, assignedUser string) (*interfaces.Reservation, error) {
	return retry(ctx, r, "reserve name", func(ctx context.Context) (*interfaces.Reservation, error) {
		return r.next.ReserveName(ctx, domain, assignedUser)
	})
}

func (r *Retrying) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, sequence int, notes string) error {
	_, err := retry(ctx, r, "mark joined", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.MarkJoined(ctx, domain, sequence, notes)
	})
	return err
}

func (r *Retrying) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.policy.MaxAttempts-1), ctx)
}

func retry[T any](ctx context.Context, r *Retrying, op string, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		callCtx, cancel := ctx, func() {}
		if r.policy.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.policy.CallTimeout)
		}
		defer cancel()

		res, err := call(callCtx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s timed out after %s", interfaces.ErrRegistryUnavailable, op, r.policy.CallTimeout)
		}
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		r.log.Warn("Registry call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			"err", err)
	}

	res, err := backoff.RetryNotifyWithData(operation, r.newBackOff(ctx), notify)
	if err != nil && IsRetryable(err) {
		return res, fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err)
	}
	return res, err
}
