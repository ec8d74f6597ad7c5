// Package metrics exposes agent run and stage statistics as prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dezso-dfield/ai-agent-representation/internal/agent"
	"github.com/dezso-dfield/ai-agent-representation/internal/model"
)

const namespace = "agent"

// Metrics is an agent.Observer backed by its own prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
}

var _ agent.Observer = (*Metrics)(nil)

// New creates and registers the agent collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by outcome.",
		}, []string{"outcome"}),
		stageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_calls_total",
			Help:      "Model calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of successful model calls by stage.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider, by direction.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(m.runs, m.stageCalls, m.stageDuration, m.tokens)
	return m
}

// Registry returns the registry holding the agent collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current values in text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) RunStarted(string, string) {}

func (m *Metrics) StageCompleted(_ string, stage agent.Stage, _ string, resp model.CompletionResponse, latency time.Duration) {
	m.stageCalls.WithLabelValues(string(stage), "success").Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(latency.Seconds())
	m.tokens.WithLabelValues("input").Add(float64(resp.InputTokens))
	m.tokens.WithLabelValues("output").Add(float64(resp.OutputTokens))
}

func (m *Metrics) StageFailed(_ string, stage agent.Stage, _ error) {
	m.stageCalls.WithLabelValues(string(stage), "error").Inc()
}

func (m *Metrics) RunFinished(_ agent.Result, err error) {
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("success").Inc()
}
