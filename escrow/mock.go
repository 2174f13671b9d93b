package escrow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// MockCredentialEscrow mocks interfaces.CredentialEscrow
type MockCredentialEscrow struct {
	mock.Mock
}

// Deposit mocks the Deposit method
func (m *MockCredentialEscrow) Deposit(ctx context.Context, record interfaces.EscrowRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// Name mocks the Name method
func (m *MockCredentialEscrow) Name() string {
	args := m.Called()
	return args.String(0)
}
