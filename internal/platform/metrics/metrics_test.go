package metrics

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"custody/pkg/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/audit-logs/evidence/{evidenceId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit-logs/evidence/EV-1"))
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/audit-logs/evidence/EV-2"))
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/nope"))

	assert.InDelta(t, 2, promtest.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/audit-logs/evidence/{evidenceId}", "200")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "unmatched", "404")), 0)
}
