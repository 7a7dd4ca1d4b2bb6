package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.DeliveriesScheduled("scan", 3)
	r.DeliveriesScheduled("scan", 0)
	r.FulfillmentResult("scan", true)
	r.FulfillmentResult("scan", false)
	r.FulfillmentResult("scan", false)
	r.WebhookEvent("invoice.paid", "handled")
	r.ObserveScan(time.Now())

	require.Equal(t, float64(3), testutil.ToFloat64(r.deliveriesScheduled.WithLabelValues("scan")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.fulfillmentResults.WithLabelValues("scan", "success")))
	require.Equal(t, float64(2), testutil.ToFloat64(r.fulfillmentResults.WithLabelValues("scan", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.webhookEvents.WithLabelValues("invoice.paid", "handled")))

	_, err = NewRecorder(reg)
	require.Error(t, err)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.DeliveriesScheduled("scan", 1)
		r.FulfillmentResult("scan", true)
		r.ObserveScan(time.Now())
		r.WebhookEvent("x", "y")
		r.Transition("pause")
		r.ObserveProcess("a", "b", time.Now())
	})
}

func TestRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got string
	e := gin.New()
	e.GET("/api/v1/subscriptions/:id", func(c *gin.Context) {
		got = RouteTemplate(c)
	})
	e.NoRoute(func(c *gin.Context) {
		got = RouteTemplate(c)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/abc", nil))
	require.Equal(t, "/api/v1/subscriptions/:id", got)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, "unmatched", got)
}

func TestRecorder_ObserveProcess(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveProcess("catalog", "resolve", time.Now())
	r.ObserveProcess("catalog", "resolve", time.Now())
	r.ObserveProcess("cms", "list", time.Now())
	require.Equal(t, 2, testutil.CollectAndCount(r.process, "scentbox_step_dur_ms"))
}

func TestNewCollector(t *testing.T) {
	for _, m := range standardMetrics {
		c, err := newCollector(m, "test")
		require.NoError(t, err, m.Name)
		require.NotNil(t, c)
	}

	_, err := newCollector(&Metric{Name: "queue_depth", Type: "gauge"}, "test")
	require.ErrorContains(t, err, "unsupported type")
}
