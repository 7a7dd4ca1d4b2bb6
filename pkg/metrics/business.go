package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const businessSubsystem = "scentbox"

// Recorder holds the fulfillment business collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	deliveriesScheduled *prometheus.CounterVec
	fulfillmentResults  *prometheus.CounterVec
	scanDuration        prometheus.Histogram
	webhookEvents       *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	process             *prometheus.HistogramVec
}

// NewRecorder registers the business collectors on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		deliveriesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: businessSubsystem,
			Name:      "deliveries_scheduled_total",
			Help:      "Delivery records created, partitioned by trigger.",
		}, []string{"trigger"}),
		fulfillmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: businessSubsystem,
			Name:      "fulfillment_results_total",
			Help:      "Per-subscription fulfillment outcomes.",
		}, []string{"trigger", "result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: businessSubsystem,
			Name:      "scan_dur_ms",
			Help:      "Fulfillment scan latency in milliseconds.",
			Buckets:   LatencyBuckets,
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: businessSubsystem,
			Name:      "webhook_events_total",
			Help:      "Billing webhook events, partitioned by type and result.",
		}, []string{"type", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: businessSubsystem,
			Name:      "subscription_transitions_total",
			Help:      "Subscription status changes, partitioned by reason.",
		}, []string{"reason"}),
		process: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: businessSubsystem,
			Name:      "step_dur_ms",
			Help:      "Latency of named business steps in milliseconds.",
			Buckets:   LatencyBuckets,
		}, []string{"component", "step"}),
	}
	for _, c := range []prometheus.Collector{
		r.deliveriesScheduled, r.fulfillmentResults, r.scanDuration, r.webhookEvents, r.transitions, r.process,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) DeliveriesScheduled(trigger string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.deliveriesScheduled.WithLabelValues(trigger).Add(float64(n))
}

func (r *Recorder) FulfillmentResult(trigger string, success bool) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.fulfillmentResults.WithLabelValues(trigger, result).Inc()
}

func (r *Recorder) ObserveScan(start time.Time) {
	if r == nil {
		return
	}
	r.scanDuration.Observe(MillisecondsSince(start))
}

func (r *Recorder) WebhookEvent(eventType, result string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (r *Recorder) Transition(reason string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(reason).Inc()
}

// ObserveProcess records the latency of a named business step, e.g. ("catalog", "resolve").
func (r *Recorder) ObserveProcess(component, step string, start time.Time) {
	if r == nil {
		return
	}
	r.process.WithLabelValues(component, step).Observe(MillisecondsSince(start))
}

var Module = fx.Options(
	fx.Provide(
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		NewRecorder,
	),
)
