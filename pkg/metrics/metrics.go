// Package metrics holds the Prometheus collectors shared by the stream
// engine, the change-feed bridge and the order gateway. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hftgate"

type Metrics struct {
	reg *prometheus.Registry

	subscriptions *prometheus.GaugeVec
	published     *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	feedBatches   *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	engineLatency *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		subscriptions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscriptions",
			Help:      "Active stream subscriptions per topic.",
		}, []string{"topic"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_published_total",
			Help:      "Events published into the fan-out engine.",
		}, []string{"topic"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_enqueued_total",
			Help:      "Events handed to a subscription buffer.",
		}, []string{"topic"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_removed_total",
			Help:      "Subscriptions removed, by reason.",
		}, []string{"topic", "reason"}),
		feedBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_batches_total",
			Help:      "Change-feed batches received per source.",
		}, []string{"source"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submissions_total",
			Help:      "Order commands by kind and result code.",
		}, []string{"command", "code"}),
		engineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_engine_seconds",
			Help:      "Matching engine round-trip latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"command"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) SubscriptionAdded(topic string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(topic).Inc()
}

func (m *Metrics) SubscriptionRemoved(topic, reason string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(topic).Dec()
	m.dropped.WithLabelValues(topic, reason).Inc()
}

func (m *Metrics) Published(topic string, enqueued int) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic).Inc()
	m.delivered.WithLabelValues(topic).Add(float64(enqueued))
}

func (m *Metrics) FeedBatch(source string) {
	if m == nil {
		return
	}
	m.feedBatches.WithLabelValues(source).Inc()
}

func (m *Metrics) Submission(command, code string, engineTime time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(command, code).Inc()
	if engineTime > 0 {
		m.engineLatency.WithLabelValues(command).Observe(engineTime.Seconds())
	}
}
