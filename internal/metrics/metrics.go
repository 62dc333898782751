// Package metrics exposes pool metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/task"
)

const (
	// Namespace prefixes every metric
	Namespace = "botpool"
)

var slotStates = []models.SlotState{
	models.SlotInitializing,
	models.SlotRunning,
	models.SlotPaused,
	models.SlotRestarting,
	models.SlotStopped,
}

// Metrics holds the pool's Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	SlotState     *prometheus.GaugeVec
	TasksTotal    *prometheus.CounterVec
	TaskAttempts  prometheus.Histogram
	RestartsTotal *prometheus.CounterVec
	Profit        prometheus.Counter
}

// New creates metrics registered on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SlotState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "slot_state",
				Help:      "1 for the current lifecycle state of each slot",
			},
			[]string{"slot", "state"},
		),
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tasks_total",
				Help:      "Completed task runs by category and result",
			},
			[]string{"category", "result"},
		),
		TaskAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "task_attempts",
				Help:      "Attempts needed per task run",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		RestartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "slot_restarts_total",
				Help:      "Slot restarts by reason",
			},
			[]string{"reason"},
		),
		Profit: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "profit_total",
				Help:      "Profit reported by successful tasks",
			},
		),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchProxies exports per-proxy failure counts read from stats at scrape time
func (m *Metrics) WatchProxies(stats func() map[string]int) {
	m.registry.MustRegister(&proxyCollector{stats: stats, desc: prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "", "proxy_failures"),
		"Failures reported against each proxy",
		[]string{"proxy"}, nil,
	)})
}

// SlotStateChanged records a state transition
func (m *Metrics) SlotStateChanged(slotID int, state models.SlotState) {
	slot := strconv.Itoa(slotID)
	for _, s := range slotStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SlotState.WithLabelValues(slot, string(s)).Set(v)
	}
}

// TaskCompleted records a finished task run
func (m *Metrics) TaskCompleted(slotID int, res task.Result) {
	result := "success"
	switch {
	case res.Exhausted:
		result = "exhausted"
	case !res.Outcome.Success:
		result = "failure"
	}
	category := string(res.Outcome.Category)
	if category == "" {
		category = "none"
	}
	m.TasksTotal.WithLabelValues(category, result).Inc()
	m.TaskAttempts.Observe(float64(res.Attempts))
	if res.Outcome.Success && res.Outcome.Profit != nil && *res.Outcome.Profit > 0 {
		m.Profit.Add(*res.Outcome.Profit)
	}
}

// SlotRestarted records a restart
func (m *Metrics) SlotRestarted(slotID int, reason string) {
	m.RestartsTotal.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type proxyCollector struct {
	stats func() map[string]int
	desc  *prometheus.Desc
}

func (c *proxyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *proxyCollector) Collect(ch chan<- prometheus.Metric) {
	for addr, n := range c.stats() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), addr)
	}
}
