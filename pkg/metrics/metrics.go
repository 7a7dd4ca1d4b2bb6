package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LatencyBuckets are millisecond buckets shared by every latency histogram.
var LatencyBuckets = []float64{
	5, 10, 25, 50, 100, 250, 500,
	1000, 2500, 5000, 10000,
	30000, 60000, 120000,
}

// Metric describes one request collector of the gin middleware.
type Metric struct {
	Name        string
	Description string
	Type        string
	Args        []string
}

// newCollector builds the vector collector for m. Only the kinds the request
// middleware records are known.
func newCollector(m *Metric, subsystem string) (prometheus.Collector, error) {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   LatencyBuckets,
		}, m.Args), nil
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	}
	return nil, fmt.Errorf("metric %s: unsupported type %q", m.Name, m.Type)
}
