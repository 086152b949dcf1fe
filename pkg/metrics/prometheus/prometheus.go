package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoeShih716/go-bank-ledger/pkg/metrics"
)

// Collector 以 Prometheus 實作 metrics.Collector
type Collector struct {
	operations   *prometheus.CounterVec
	opLatency    *prometheus.HistogramVec
	conflicts    *prometheus.CounterVec
	transfers    *prometheus.CounterVec
	transferTime *prometheus.HistogramVec
	inconsistent prometheus.Counter
}

// NewCollector 建立 Prometheus collector
//
// 參數:
//
//	namespace: 指標前綴 (例如 "ledger")
//
// 回傳:
//
//	*Collector: 尚未註冊的 collector，需呼叫 Register
func NewCollector(namespace string) *Collector {
	buckets := prometheus.ExponentialBuckets(0.0001, 2, 15)
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of account operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		opLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Account operation latency",
				Buckets:   buckets,
			},
			[]string{"op"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_conflicts_total",
				Help:      "Total number of compare-and-update version conflicts",
			},
			[]string{"op"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of transfers by terminal state",
			},
			[]string{"state"},
		),
		transferTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Transfer latency by terminal state",
				Buckets:   buckets,
			},
			[]string{"state"},
		),
		inconsistent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_inconsistent_total",
				Help:      "Transfers whose compensation failed and need operator attention",
			},
		),
	}
}

// Register 將所有指標註冊到 registerer
func (c *Collector) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.operations,
		c.opLatency,
		c.conflicts,
		c.transfers,
		c.transferTime,
		c.inconsistent,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordOperation(op string, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.opLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (c *Collector) RecordVersionConflict(op string) {
	c.conflicts.WithLabelValues(op).Inc()
}

func (c *Collector) RecordTransfer(state string, duration time.Duration) {
	c.transfers.WithLabelValues(state).Inc()
	c.transferTime.WithLabelValues(state).Observe(duration.Seconds())
}

func (c *Collector) RecordInconsistent() {
	c.inconsistent.Inc()
}

var _ metrics.Collector = (*Collector)(nil)
