// Package metrics exposes screening counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "driver_screener"

// Metrics implements the parser and screening observers.
type Metrics struct {
	parses      *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	exhausted   *prometheus.CounterVec
	decisions   *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_parsed_total",
			Help:      "Model replies parsed, by requirement type and the stage that produced the value.",
		}, []string{"requirement_type", "method"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requirement_evaluations_total",
			Help:      "Requirement evaluations, by requirement type and resulting status.",
		}, []string{"requirement_type", "status"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followups_exhausted_total",
			Help:      "Requirements forced to NOT_MET after the clarification budget ran out.",
		}, []string{"requirement_type"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_decisions_total",
			Help:      "Finished conversations, by decision.",
		}, []string{"decision"}),
	}

	for _, c := range []prometheus.Collector{m.parses, m.evaluations, m.exhausted, m.decisions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveParse(requirementType, method string) {
	m.parses.WithLabelValues(requirementType, method).Inc()
}

func (m *Metrics) ObserveEvaluation(requirementType, status string) {
	m.evaluations.WithLabelValues(requirementType, status).Inc()
}

func (m *Metrics) ObserveFollowUpExhausted(requirementType string) {
	m.exhausted.WithLabelValues(requirementType).Inc()
}

func (m *Metrics) ObserveDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
