package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.UseCase("checkout", "ok")
	m.UseCase("checkout", "ok")
	m.UseCase("checkout", "InsufficientStock")
	m.EventPublished("OrderCreated")
	m.ObserveHTTP("POST", "/checkout", 201, 12*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.useCases.WithLabelValues("checkout", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.useCases.WithLabelValues("checkout", "InsufficientStock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("OrderCreated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/checkout", "2xx")))
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UseCase("x", "ok")
		m.EventPublished("x")
		m.HandlerFailed("x")
		m.OfferPooled()
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.UseCase("accept_delivery", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ezf_usecase_requests_total"))
}
