package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer_Handler(t *testing.T) {
	srv, err := New("registry-test", "")
	require.NoError(t, err)

	ReservationsTotal.WithLabelValues("nycoa", "ok").Inc()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `registry_reservations_total{domain="nycoa",result="ok",service="registry-test"}`)
}
