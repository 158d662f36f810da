package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "threatscope"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BlocksProcessed    prometheus.Counter
	BlocksSkipped      prometheus.Counter
	TxProcessed        prometheus.Counter
	PassErrors         prometheus.Counter
	PassDuration       prometheus.Histogram
	ChainHead          prometheus.Gauge
	Cursor             prometheus.Gauge
	ThreatsDetected    *prometheus.CounterVec
	EnrichmentOutcomes *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	Mitigations        *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Blocks fully analysed",
		}),
		BlocksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_skipped_total",
			Help:      "Blocks skipped after repeated fetch failures",
		}),
		TxProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_processed_total",
			Help:      "Transactions analysed",
		}),
		PassErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_errors_total",
			Help:      "Ingestion passes that ended in error",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall-clock duration of ingestion passes",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ChainHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_head",
			Help:      "Latest observed chain head",
		}),
		Cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor",
			Help:      "Last fully processed block",
		}),
		ThreatsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threats_detected_total",
			Help:      "Threat alerts produced",
		}, []string{"type", "severity"}),
		EnrichmentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_outcomes_total",
			Help:      "External intelligence outcomes",
		}, []string{"outcome"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts",
		}, []string{"channel", "result"}),
		Mitigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mitigations_total",
			Help:      "Mitigation attempts",
		}, []string{"result"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "threat_detected events dropped by full subscriber queues",
		}, []string{"subscriber"}),
	}

	m.registry.MustRegister(
		m.BlocksProcessed,
		m.BlocksSkipped,
		m.TxProcessed,
		m.PassErrors,
		m.PassDuration,
		m.ChainHead,
		m.Cursor,
		m.ThreatsDetected,
		m.EnrichmentOutcomes,
		m.Deliveries,
		m.Mitigations,
		m.EventsDropped,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveBlock(txCount int) {
	if m == nil {
		return
	}
	m.BlocksProcessed.Inc()
	m.TxProcessed.Add(float64(txCount))
}

func (m *Metrics) ObserveSkippedBlock() {
	if m == nil {
		return
	}
	m.BlocksSkipped.Inc()
}

func (m *Metrics) ObservePass(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.PassDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.PassErrors.Inc()
	}
}

func (m *Metrics) SetHead(head uint64) {
	if m == nil {
		return
	}
	m.ChainHead.Set(float64(head))
}

func (m *Metrics) SetCursor(cursor uint64) {
	if m == nil {
		return
	}
	m.Cursor.Set(float64(cursor))
}

func (m *Metrics) ObserveThreat(threatType, severity string) {
	if m == nil {
		return
	}
	m.ThreatsDetected.WithLabelValues(threatType, severity).Inc()
}

func (m *Metrics) ObserveEnrichment(outcome string) {
	if m == nil {
		return
	}
	m.EnrichmentOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDelivery(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveMitigation(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Mitigations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDroppedEvent(subscriber string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(subscriber).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
