package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/workstation-provisioning/config"
	"github.com/ruteri/workstation-provisioning/httpserver"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

func newRegistryServer(t *testing.T, backend interfaces.NameRegistry) *HTTPClient {
	t.Helper()
	cfg, err := config.New(config.RegistryConfig{Backend: config.BackendSheets}, testDomain())
	require.NoError(t, err)

	router := chi.NewRouter()
	httpserver.NewHandler(backend, cfg.Domain, testLogger()).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return NewHTTPClient(srv.URL)
}

func TestHTTPClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tables := NewMemoryTables()
	table := tables.Table(testDomain())
	seedRows(t, table, "nycoa", 6)

	client := newRegistryServer(t, NewTableRegistry(tables.Open, testLogger()))

	reservation, err := client.ReserveName(ctx, testDomain(), "johndoe")
	require.NoError(t, err)
	assert.Equal(t, "007-johndoe", reservation.Hostname)
	assert.Equal(t, 7, reservation.Sequence)

	require.NoError(t, client.MarkJoined(ctx, testDomain(), 7, "Provisioned via computer-setup"))

	rows, err := table.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, interfaces.StatusJoined, rows[6].Row.Status)
	assert.Equal(t, "Provisioned via computer-setup", rows[6].Row.Notes)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	domain := testDomain()

	t.Run("unknown domain", func(t *testing.T) {
		client := newRegistryServer(t, new(MockNameRegistry))
		other := domain
		other.Name = "elsewhere"
		_, err := client.ReserveName(ctx, other, "ann")
		assert.ErrorIs(t, err, interfaces.ErrUnknownDomain)
	})

	t.Run("row not found", func(t *testing.T) {
		backend := new(MockNameRegistry)
		backend.On("MarkJoined", mock.Anything, mock.Anything, 42, "").Return(interfaces.ErrRowNotFound)
		client := newRegistryServer(t, backend)
		assert.ErrorIs(t, client.MarkJoined(ctx, domain, 42, ""), interfaces.ErrRowNotFound)
	})

	t.Run("conflict", func(t *testing.T) {
		backend := new(MockNameRegistry)
		backend.On("ReserveName", mock.Anything, mock.Anything, "ann").Return(nil, interfaces.ErrReservationConflict)
		client := newRegistryServer(t, backend)
		_, err := client.ReserveName(ctx, domain, "ann")
		assert.ErrorIs(t, err, interfaces.ErrReservationConflict)
		assert.True(t, IsRetryable(err))
	})

	t.Run("permission denied", func(t *testing.T) {
		backend := new(MockNameRegistry)
		backend.On("ReserveName", mock.Anything, mock.Anything, "ann").Return(nil, interfaces.ErrPermissionDenied)
		client := newRegistryServer(t, backend)
		_, err := client.ReserveName(ctx, domain, "ann")
		assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)
		assert.False(t, IsRetryable(err))
	})

	t.Run("invalid hostname", func(t *testing.T) {
		client := newRegistryServer(t, NewTableRegistry(NewMemoryTables().Open, testLogger()))
		_, err := client.ReserveName(ctx, domain, "someone-with-a-long-name")
		assert.ErrorIs(t, err, interfaces.ErrInvalidHostname)
	})

	t.Run("empty user", func(t *testing.T) {
		client := newRegistryServer(t, new(MockNameRegistry))
		_, err := client.ReserveName(ctx, domain, "")
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPClient(addr).ReserveName(context.Background(), testDomain(), "ann")
	assert.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
}

func TestHTTPClient_PlainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL).MarkJoined(context.Background(), testDomain(), 1, "")
	assert.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
}
