// Package metrics exposes live progress of a sweep to Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/signalnine/clutterbench/internal/logging"
)

const namespace = "clutterbench"

type Metrics struct {
	registry *prometheus.Registry

	episodes        *prometheus.CounterVec
	envErrors       *prometheus.CounterVec
	episodeDuration *prometheus.HistogramVec
	runsCompleted   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		episodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Classified episodes by method and failure mode.",
		}, []string{"method", "failure_mode"}),
		envErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "environment_errors_total",
			Help:      "Episodes whose environment crashed or timed out.",
		}, []string{"method"}),
		episodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_duration_seconds",
			Help:      "Wall-clock duration of one episode execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"method"}),
		runsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Runs whose baseline and treatment episodes all finished.",
		}),
	}
}

// ObserveEpisode records one finished episode.
func (m *Metrics) ObserveEpisode(method, failureMode string, d time.Duration, envErr bool) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(method, failureMode).Inc()
	m.episodeDuration.WithLabelValues(method).Observe(d.Seconds())
	if envErr {
		m.envErrors.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) RunCompleted() {
	if m == nil {
		return
	}
	m.runsCompleted.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
