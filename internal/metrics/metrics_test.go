package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTrade(t *testing.T) {
	m := New()
	m.ObserveTrade("BUY", "ok", 10*time.Millisecond)
	m.ObserveTrade("BUY", "ok", 10*time.Millisecond)
	m.ObserveTrade("SELL", "insufficient_quantity", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trades.WithLabelValues("BUY", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("SELL", "insufficient_quantity")))
}

func TestObserveRecompute(t *testing.T) {
	m := New()
	m.ObserveRecompute(nil, 7, time.Millisecond)
	m.ObserveRecompute(errors.New("db down"), 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputes.WithLabelValues("error")))
	// a failed cycle keeps the last good gauge value
	assert.Equal(t, 7.0, testutil.ToFloat64(m.rankedUsers))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTrade("BUY", "ok", time.Second)
		m.ObserveRecompute(nil, 1, time.Second)
		m.IncSimulation()
	})
}

func TestGinAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Gin())
	r.GET("/api/stocks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stocks/abc", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/stocks/:id", "200")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "stockgame_http_requests_total"))
}
