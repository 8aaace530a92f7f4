package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks the recurring settlement jobs: how far the
// release backlog stretches and how the workers resolve it.
type SettlementMetrics struct {
	releaseLag      prometheus.Histogram
	releaseBacklog  prometheus.Gauge
	ordersReleased  *prometheus.CounterVec
	refundEscalated prometheus.Counter
}

var (
	settlementMetricsOnce sync.Once
	settlementMetrics     *SettlementMetrics
)

func Settlement() *SettlementMetrics {
	return SettlementWithConfig(Config{})
}

func SettlementWithConfig(cfg Config) *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementMetrics = newSettlementMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return settlementMetrics
}

func ResetSettlementMetricsForTest() {
	settlementMetricsOnce = sync.Once{}
	settlementMetrics = nil
}

func newSettlementMetrics(registerer prometheus.Registerer, cfg Config) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "escrow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	releaseLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "escrow_balance_release_lag_seconds",
			Help: "Time past the holding deadline before an order's escrow was released.",
			Buckets: []float64{
				60,    // 1m
				300,   // 5m
				1800,  // 30m
				3600,  // 1h
				14400, // 4h
				43200, // 12h
				86400, // 24h
			},
			ConstLabels: constLabels,
		},
	)

	releaseBacklog := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "escrow_balance_release_backlog_total",
			Help:        "Orders past the holding period still awaiting release.",
			ConstLabels: constLabels,
		},
	)

	ordersReleased := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "escrow_orders_released_total",
			Help:        "Orders processed by the release worker.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // released | skipped | failed
	)

	refundEscalated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "escrow_refunds_escalated_total",
			Help:        "Refund cases auto-escalated after the shop response window.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		releaseLag,
		releaseBacklog,
		ordersReleased,
		refundEscalated,
	)

	return &SettlementMetrics{
		releaseLag:      releaseLag,
		releaseBacklog:  releaseBacklog,
		ordersReleased:  ordersReleased,
		refundEscalated: refundEscalated,
	}
}

func (m *SettlementMetrics) ObserveReleaseLag(lag time.Duration) {
	if m == nil {
		return
	}
	seconds := lag.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.releaseLag.Observe(seconds)
}

func (m *SettlementMetrics) SetReleaseBacklog(value int) {
	if m == nil {
		return
	}
	m.releaseBacklog.Set(float64(value))
}

func (m *SettlementMetrics) IncOrderReleased(result string) {
	if m == nil {
		return
	}
	m.ordersReleased.WithLabelValues(result).Inc()
}

func (m *SettlementMetrics) IncRefundEscalated() {
	if m == nil {
		return
	}
	m.refundEscalated.Inc()
}
