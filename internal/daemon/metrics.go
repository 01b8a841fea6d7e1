package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes per-topic gauges on a Prometheus scrape endpoint.
// Grounded on the teacher pack's prometheus.NewRegistry +
// promhttp.HandlerFor + dedicated http.Server pattern (telemetry.go's
// startMetricsServer), stripped of the OTLP/tracing machinery that
// nothing in this daemon produces.
type Metrics struct {
	registry  *Registry
	promReg   *prometheus.Registry
	capacity  *prometheus.GaugeVec
	published *prometheus.GaugeVec
}

// NewMetrics wires a fresh Prometheus registry to reg's live topic
// state. Collection happens on scrape, not on a ticker: the /metrics
// handler refreshes both gauge vectors from reg.Stats() before serving.
func NewMetrics(reg *Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		promReg:  prometheus.NewRegistry(),
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aether_topic_capacity",
			Help: "Configured slot capacity of a topic's ring segment.",
		}, []string{"topic"}),
		published: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aether_topic_messages_published",
			Help: "Cumulative messages published to a topic (write_seq).",
		}, []string{"topic"}),
	}
	m.promReg.MustRegister(m.capacity, m.published)
	return m
}

func (m *Metrics) refresh() {
	for _, s := range m.registry.Stats() {
		m.capacity.WithLabelValues(s.Topic).Set(float64(s.Capacity))
		m.published.WithLabelValues(s.Topic).Set(float64(s.MessagesPublished))
	}
}

// Start binds addr and serves /metrics on a background goroutine. The
// returned func stops the server; it blocks until shutdown completes or
// the passed context expires.
func (m *Metrics) Start(addr string) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.refresh()
		promhttp.HandlerFor(m.promReg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		<-errCh
		return err
	}, nil
}
