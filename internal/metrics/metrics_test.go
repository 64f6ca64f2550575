package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClipsTotalByOutcome(t *testing.T) {
	before := testutil.ToFloat64(ClipsTotal.WithLabelValues(OutcomeAccepted))
	ClipsTotal.WithLabelValues(OutcomeAccepted).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ClipsTotal.WithLabelValues(OutcomeAccepted)))
}

func TestHealthz(t *testing.T) {
	srv := StartMetricsServer("127.0.0.1:0")
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "facecurator_frames_total")
}
