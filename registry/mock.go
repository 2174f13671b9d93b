package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// MockNameRegistry mocks interfaces.NameRegistry
type MockNameRegistry struct {
	mock.Mock
}

// ReserveName mocks the ReserveName method
func (m *MockNameRegistry) ReserveName(ctx context.Context, domain interfaces.DomainConfig, assignedUser string) (*interfaces.Reservation, error) {
	args := m.Called(ctx, domain, assignedUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Reservation), args.Error(1)
}

// MarkJoined mocks the MarkJoined method
func (m *MockNameRegistry) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, sequence int, notes string) error {
	args := m.Called(ctx, domain, sequence, notes)
	return args.Error(0)
}
