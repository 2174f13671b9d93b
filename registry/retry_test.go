package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(interfaces.ErrRegistryUnavailable))
	assert.True(t, IsRetryable(interfaces.ErrReservationConflict))
	assert.False(t, IsRetryable(interfaces.ErrRowNotFound))
	assert.False(t, IsRetryable(interfaces.ErrPermissionDenied))
	assert.False(t, IsRetryable(interfaces.ErrUnknownDomain))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestRetrying_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	domain := testDomain()
	next := new(MockNameRegistry)
	reservation := &interfaces.Reservation{Domain: "nycoa", Sequence: 3, Hostname: "003-ann", AssignedUser: "ann"}

	next.On("ReserveName", mock.Anything, domain, "ann").Return(nil, interfaces.ErrReservationConflict).Once()
	next.On("ReserveName", mock.Anything, domain, "ann").Return(nil, interfaces.ErrRegistryUnavailable).Once()
	next.On("ReserveName", mock.Anything, domain, "ann").Return(reservation, nil).Once()

	reg := NewRetrying(next, fastPolicy(5), testLogger())
	got, err := reg.ReserveName(ctx, domain, "ann")
	require.NoError(t, err)
	assert.Equal(t, reservation, got)
	next.AssertNumberOfCalls(t, "ReserveName", 3)
}

func TestRetrying_StopsOnTerminalError(t *testing.T) {
	domain := testDomain()
	next := new(MockNameRegistry)
	next.On("MarkJoined", mock.Anything, domain, 7, "notes").Return(interfaces.ErrRowNotFound)

	reg := NewRetrying(next, fastPolicy(5), testLogger())
	err := reg.MarkJoined(context.Background(), domain, 7, "notes")
	require.ErrorIs(t, err, interfaces.ErrRowNotFound)
	next.AssertNumberOfCalls(t, "MarkJoined", 1)
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	domain := testDomain()
	next := new(MockNameRegistry)
	next.On("ReserveName", mock.Anything, domain, "ann").Return(nil, interfaces.ErrReservationConflict)

	reg := NewRetrying(next, fastPolicy(3), testLogger())
	_, err := reg.ReserveName(context.Background(), domain, "ann")
	require.ErrorIs(t, err, interfaces.ErrReservationConflict)
	assert.Contains(t, err.Error(), "after 3 attempts")
	next.AssertNumberOfCalls(t, "ReserveName", 3)
}

type slowRegistry struct {
	calls int
}

func (s *slowRegistry) ReserveName(ctx context.Context, _ interfaces.DomainConfig, _ string) (*interfaces.Reservation, error) {
	s.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowRegistry) MarkJoined(context.Context, interfaces.DomainConfig, int, string) error {
	return nil
}

func TestRetrying_CallTimeoutIsRetryable(t *testing.T) {
	slow := &slowRegistry{}
	policy := fastPolicy(2)
	policy.CallTimeout = 10 * time.Millisecond

	reg := NewRetrying(slow, policy, testLogger())
	_, err := reg.ReserveName(context.Background(), testDomain(), "ann")
	require.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
	assert.Equal(t, 2, slow.calls)
}

func TestRetrying_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := new(MockNameRegistry)
	next.On("ReserveName", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)

	reg := NewRetrying(next, fastPolicy(5), testLogger())
	_, err := reg.ReserveName(ctx, testDomain(), "ann")
	require.ErrorIs(t, err, context.Canceled)
	next.AssertNumberOfCalls(t, "ReserveName", 1)
}
