// Package metrics exports dispatcher activity in the Prometheus format.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/command-runner/pkg/valueobject"
)

const (
	logPrefix = "metrics:metrics"
	namespace = "runner"
)

// Metrics implements dispatcher.Observer on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	records  *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_handled_total",
			Help:      "Inbound commands by service, command and replied outcome.",
		}, []string{"service", "command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from intake to reply for inbound commands.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "command"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_settled_total",
			Help:      "Outbound calls by service, command and how they settled.",
		}, []string{"service", "command", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_reported_total",
			Help:      "Records written to the error sink by identity.",
		}, []string{"fqn"}),
	}
	m.registry.MustRegister(
		m.commands, m.duration, m.calls, m.records,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CommandHandled counts an inbound command.
func (m *Metrics) CommandHandled(service valueobject.FQN, command, outcome string, elapsed time.Duration) {
	m.commands.WithLabelValues(string(service), command, outcome).Inc()
	m.duration.WithLabelValues(string(service), command).Observe(elapsed.Seconds())
}

// CallSettled counts a settled outbound call.
func (m *Metrics) CallSettled(service valueobject.FQN, command, outcome string) {
	m.calls.WithLabelValues(string(service), command, outcome).Inc()
}

// RecordReported counts a sink record.
func (m *Metrics) RecordReported(fqn valueobject.FQN) {
	m.records.WithLabelValues(string(fqn)).Inc()
}

// Gauge exports fn, sampled on every scrape, as runner_<name>.
func (m *Metrics) Gauge(name, help string, fn func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
	if err := m.registry.Register(g); err != nil {
		return fmt.Errorf("%s - failed to register gauge %s: %w", logPrefix, name, err)
	}
	return nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
