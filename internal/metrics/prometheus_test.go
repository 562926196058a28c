package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestHandlerExposesListenerMetrics(t *testing.T) {
	Init()
	MessagesReceived.WithLabelValues("metrics-test").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(MessagesReceived.WithLabelValues("metrics-test")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `listener_messages_received_total{endpoint="metrics-test"} 1`)
}
