package dbpool

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "primary")
	p, _ := newTestPool(t, Config{MaxSize: 1, Metrics: m, Expires: 30 * time.Millisecond})
	ctx := context.Background()

	conn, _ := p.Get(ctx)
	if _, err := p.Get(ctx); err == nil {
		t.Fatal("expected a capacity error")
	}
	p.Put(conn)
	time.Sleep(60 * time.Millisecond)
	p.Cleanup()

	if v := testutil.ToFloat64(m.created); v != 1 {
		t.Errorf("created = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.timeouts); v != 1 {
		t.Errorf("timeouts = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.closed); v != 1 {
		t.Errorf("closed = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.evicted); v != 1 {
		t.Errorf("evicted = %v, want 1", v)
	}
}

// nil 指标是合法的，什么都不记
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.connCreated()
	m.connClosed()
	m.acquireTimeout()
	m.sweepDone(3)
}
