package metrics

/* copy from https://github.com/zsais/go-gin-prometheus
edits:
- replace slog with a new logger interface
- remove push gateway and basic auth variants
- label by gin route template
- drop the referer label and the sidecar url override
*/

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Request collectors, labelled by status code, method and route template.
var reqCnt = &Metric{
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url"},
}

var reqDur = &Metric{
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url"},
}

var resSz = &Metric{
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url"},
}

var reqSz = &Metric{
	Name:        "req_sz_bytes",
	Description: "The HTTP request sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url"},
}

var standardMetrics = []*Metric{
	reqCnt,
	reqDur,
	resSz,
	reqSz,
}

var defaultMetricPath = "/metrics"

type Logger interface {
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// RequestCounterURLLabelMappingFn maps a request to the "url" label. Defaults to RouteTemplate.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus contains the metrics gathered by the instance and its path
type Prometheus struct {
	reqCnt        *prometheus.CounterVec
	reqDur        *prometheus.HistogramVec
	reqSz, resSz  *prometheus.SummaryVec
	router        *gin.Engine
	listenAddress string

	MetricsList []*Metric
	MetricsPath string

	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsList             []*Metric
	MetricsPath             string
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  Logger
}

// NewPrometheus generates a new set of metrics with a certain subsystem name
func NewPrometheus(options NewPrometheusOptions) *Prometheus {

	var metricsList = options.MetricsList

	if len(options.MetricsList) > 1 {
		panic("Too many args. NewPrometheus( string, <optional []*Metric> ).")
	}

	p := &Prometheus{
		MetricsList: append(metricsList, standardMetrics...),
		logger:      options.Logger,
	}

	if options.MetricsPath != "" {
		p.MetricsPath = options.MetricsPath
	} else {
		p.MetricsPath = defaultMetricPath
	}

	if options.ReqCntURLLabelMappingFn != nil {
		p.ReqCntURLLabelMappingFn = options.ReqCntURLLabelMappingFn
	} else {
		p.ReqCntURLLabelMappingFn = RouteTemplate
	}

	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}

	p.registerMetrics(options.Subsystem)

	return p
}

// SetListenAddress for exposing metrics on address. If not set, it will be exposed at the
// same address of the gin engine that is being used
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
	if p.listenAddress != "" {
		p.router = gin.Default()
	}
}

// SetMetricsPath set metrics paths
func (p *Prometheus) SetMetricsPath(e *gin.Engine) {

	if p.listenAddress != "" {
		p.router.GET(p.MetricsPath, prometheusHandler())
		p.runServer()
	} else {
		e.GET(p.MetricsPath, prometheusHandler())
	}
}

func (p *Prometheus) runServer() {
	if p.listenAddress != "" {
		go p.router.Run(p.listenAddress)
	}
}

func (p *Prometheus) registerMetrics(subsystem string) {

	for _, metricDef := range p.MetricsList {
		metric, err := newCollector(metricDef, subsystem)
		if err != nil {
			p.logger.Errorf("%s could not be built, err=%v", metricDef.Name, err)
			continue
		}
		if err := prometheus.Register(metric); err != nil {
			p.logger.Errorf("%s could not be registered in Prometheus, err=%v", metricDef.Name, err)
		}
		switch metricDef {
		case reqCnt:
			p.reqCnt = metric.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = metric.(*prometheus.HistogramVec)
		case resSz:
			p.resSz = metric.(*prometheus.SummaryVec)
		case reqSz:
			p.reqSz = metric.(*prometheus.SummaryVec)
		}
	}
}

// Use adds the middleware to a gin engine.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	p.SetMetricsPath(e)
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSz := computeApproximateRequestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := MillisecondsSince(start)
		resSz := float64(c.Writer.Size())

		url := p.ReqCntURLLabelMappingFn(c)

		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(elapsed)
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
		p.reqSz.WithLabelValues(status, c.Request.Method, url).Observe(float64(reqSz))
		p.resSz.WithLabelValues(status, c.Request.Method, url).Observe(resSz)
	}
}

// RouteTemplate labels requests by their registered route ("/api/v1/subscriptions/:id/pause")
// so path parameters do not explode label cardinality. Unmatched routes collapse to "unmatched".
func RouteTemplate(c *gin.Context) string {
	if full := c.FullPath(); full != "" {
		return full
	}
	if strings.HasPrefix(c.Request.URL.Path, "/swagger/") {
		return "/swagger/*any"
	}
	return "unmatched"
}
