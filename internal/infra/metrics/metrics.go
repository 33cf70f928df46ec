// Package metrics exposes the companion counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

// StatusSource reports the current connection status.
type StatusSource interface {
	Status() domain.Status
}

type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics registers collectors that read stats and status on every scrape,
// so nothing has to be pushed from the audio path.
func NewMetrics(namespace string, stats *application.Stats, status StatusSource) *Metrics {
	if namespace == "" {
		namespace = "companion"
	}

	registry := prometheus.NewRegistry()

	counter := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return float64(load()) },
		)
	}

	registry.MustRegister(
		counter("frames_sent_total", "Microphone frames sent to the model", stats.FramesSent.Load),
		counter("frames_dropped_total", "Microphone frames dropped while disconnected or backed up", stats.FramesDropped.Load),
		counter("send_failures_total", "Outbound messages the transport rejected", stats.SendFailures.Load),
		counter("chunks_scheduled_total", "Model audio chunks scheduled for playback", stats.ChunksScheduled.Load),
		counter("chunks_rejected_total", "Model audio chunks dropped as malformed", stats.ChunksRejected.Load),
		counter("interruptions_total", "Playback interruptions signalled by the model", stats.Interruptions.Load),
		counter("tool_calls_total", "Tool calls received from the model", stats.ToolCalls.Load),
		counter("sessions_total", "Realtime sessions opened", stats.Sessions.Load),
		counter("reconnects_total", "Automatic reconnects issued", stats.ReconnectsIssued.Load),
	)

	for _, s := range []domain.Status{domain.StatusDisconnected, domain.StatusConnecting, domain.StatusConnected, domain.StatusError} {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "connection_status",
				Help:        "1 for the current connection status, 0 otherwise",
				ConstLabels: prometheus.Labels{"status": string(s)},
			},
			func() float64 {
				if status.Status() == s {
					return 1
				}
				return 0
			},
		))
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{registry: registry}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
