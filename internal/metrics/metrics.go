// Package metrics exposes gateway counters in Prometheus format.
package metrics

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinder/storyboard/internal/client"
)

const namespace = "storyboard"

// Metrics owns a private registry so tests can build as many as they like
type Metrics struct {
	Registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	backendCalls *prometheus.HistogramVec
	projectSaves *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Orchestrator state transitions by event.",
		}, []string{"event"}),
		backendCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Story backend call latency by operation and outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"op", "outcome"}),
		projectSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_saves_total",
			Help:      "Finished project:save tasks by status.",
		}, []string{"status"}),
	}

	m.Registry.MustRegister(
		m.transitions,
		m.backendCalls,
		m.projectSaves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition counts one applied orchestrator event
func (m *Metrics) ObserveTransition(event string) {
	m.transitions.WithLabelValues(event).Inc()
}

// ObserveProjectSave counts one finished project save
func (m *Metrics) ObserveProjectSave(status string) {
	m.projectSaves.WithLabelValues(status).Inc()
}

// ObserveBackendCall records the latency of one backend call
func (m *Metrics) ObserveBackendCall(op string, err error, d time.Duration) {
	outcome := string(client.Classify(err))
	if outcome == "" {
		outcome = "ok"
	}
	m.backendCalls.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// TrackSessions exposes n() as the active session gauge
func (m *Metrics) TrackSessions(n func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Open storyboard sessions.",
	}, func() float64 { return float64(n()) }))
}

// Handler serves the registry for GET /metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// Instrument wraps gen so every call is timed
func (m *Metrics) Instrument(gen client.StoryGenerator) client.StoryGenerator {
	return &instrumentedGenerator{next: gen, metrics: m}
}

type instrumentedGenerator struct {
	next    client.StoryGenerator
	metrics *Metrics
}

func (g *instrumentedGenerator) GenerateStory(ctx context.Context, req *client.GenerateStoryRequest) (*client.GenerateStoryResponse, error) {
	start := time.Now()
	resp, err := g.next.GenerateStory(ctx, req)
	g.metrics.ObserveBackendCall("generate-story", err, time.Since(start))
	return resp, err
}

func (g *instrumentedGenerator) AnimateFrame(ctx context.Context, req *client.AnimateFrameRequest) (*client.AnimateFrameResponse, error) {
	start := time.Now()
	resp, err := g.next.AnimateFrame(ctx, req)
	g.metrics.ObserveBackendCall("animate-frame", err, time.Since(start))
	return resp, err
}
