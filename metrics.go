package dbpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	createdCounter = "dbpool_connections_created_total"
	closedCounter  = "dbpool_connections_closed_total"
	timeoutCounter = "dbpool_acquire_timeouts_total"
	sweepCounter   = "dbpool_sweeps_total"
	evictedCounter = "dbpool_evicted_total"
)

// Metrics 一个目标池的 prometheus 指标。nil 也合法，什么都不记。
type Metrics struct {
	created  prometheus.Counter
	closed   prometheus.Counter
	timeouts prometheus.Counter
	sweeps   prometheus.Counter
	evicted  prometheus.Counter
}

// NewMetrics 在给定的 registerer 上注册池指标，以目标 key 作为标签。
func NewMetrics(reg prometheus.Registerer, target string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"target": target}
	return &Metrics{
		created: f.NewCounter(prometheus.CounterOpts{
			Name:        createdCounter,
			Help:        "Connections created by the pool",
			ConstLabels: labels,
		}),
		closed: f.NewCounter(prometheus.CounterOpts{
			Name:        closedCounter,
			Help:        "Connections permanently closed by the pool",
			ConstLabels: labels,
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Name:        timeoutCounter,
			Help:        "Acquires that timed out at capacity",
			ConstLabels: labels,
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Name:        sweepCounter,
			Help:        "Eviction sweeps run",
			ConstLabels: labels,
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Name:        evictedCounter,
			Help:        "Connections evicted by sweeps",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) connCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.closed.Inc()
}

func (m *Metrics) acquireTimeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

func (m *Metrics) sweepDone(evicted int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.evicted.Add(float64(evicted))
}
