package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestComponentHealthyUnderThresholds(t *testing.T) {
	m := NewMonitor(0)
	for i := 0; i < 100; i++ {
		m.Record("dedup", 10*time.Millisecond, true)
	}

	h, ok := m.Component("dedup")
	if !ok {
		t.Fatal("component not tracked")
	}
	if !h.Healthy {
		t.Errorf("component unhealthy: %+v", h)
	}
	if h.Operations != 100 || h.ErrorRate != 0 {
		t.Errorf("operations = %d, error rate = %f", h.Operations, h.ErrorRate)
	}
	if h.AvgLatencyMs != 10 {
		t.Errorf("avg latency = %f, want 10", h.AvgLatencyMs)
	}
}

func TestErrorRateBreachMarksUnhealthy(t *testing.T) {
	m := NewMonitor(0)
	// 5 failures in 100 operations is exactly 5%, at the ceiling.
	for i := 0; i < 95; i++ {
		m.Record("enrich", time.Millisecond, true)
	}
	for i := 0; i < 5; i++ {
		m.Record("enrich", time.Millisecond, false)
	}

	h, _ := m.Component("enrich")
	if h.Healthy {
		t.Errorf("5%% error rate reported healthy: %+v", h)
	}
	if h.Failures != 5 {
		t.Errorf("failures = %d", h.Failures)
	}
}

func TestLatencyBreachMarksUnhealthy(t *testing.T) {
	m := NewMonitor(0)
	m.Record("batch", 600*time.Millisecond, true)

	if h, _ := m.Component("batch"); h.Healthy {
		t.Errorf("600ms average reported healthy: %+v", h)
	}
}

func TestLatencyWindowDropsOldObservations(t *testing.T) {
	m := NewMonitor(0)
	// A slow first observation ages out of the 1000-sample window.
	m.Record("window", 10*time.Second, true)
	for i := 0; i < latencyWindow; i++ {
		m.Record("window", time.Millisecond, true)
	}

	h, _ := m.Component("window")
	if h.AvgLatencyMs != 1 {
		t.Errorf("avg latency = %f, want 1 after the slow sample aged out", h.AvgLatencyMs)
	}
}

func TestOverallRollup(t *testing.T) {
	m := NewMonitor(0)
	if m.Overall() != "healthy" {
		t.Errorf("empty monitor = %s", m.Overall())
	}

	m.Record("a", time.Millisecond, true)
	m.Record("b", time.Millisecond, true)
	if m.Overall() != "healthy" {
		t.Errorf("all healthy = %s", m.Overall())
	}

	m.Record("b", time.Millisecond, false) // 50% error rate
	if m.Overall() != "degraded" {
		t.Errorf("one unhealthy = %s", m.Overall())
	}

	m.Record("a", time.Millisecond, false)
	if m.Overall() != "critical" {
		t.Errorf("none healthy = %s", m.Overall())
	}
}

func TestComponentsSortedByName(t *testing.T) {
	m := NewMonitor(0)
	m.Record("zeta", time.Millisecond, true)
	m.Record("alpha", time.Millisecond, true)

	list := m.Components()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("components = %+v", list)
	}
}

func TestPeriodicCheckRecovery(t *testing.T) {
	m := NewMonitor(time.Hour)
	broken := true
	m.AddCheck(Check{
		Name: "store",
		CheckFn: func(context.Context) error {
			if broken {
				return errors.New("store unreachable")
			}
			return nil
		},
		RecoverFn: func(context.Context) error {
			broken = false
			return nil
		},
	})

	m.runAll(context.Background())

	statuses := m.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if !statuses[0].Recovered || !statuses[0].Healthy {
		t.Errorf("status = %+v, want recovered and healthy", statuses[0])
	}
	if !m.ChecksPassing() {
		t.Error("checks not passing after recovery")
	}
}

func TestPeriodicCheckUnrecoverable(t *testing.T) {
	m := NewMonitor(time.Hour)
	m.AddCheck(Check{
		Name:    "disk",
		CheckFn: func(context.Context) error { return errors.New("disk full") },
	})

	m.runAll(context.Background())

	if m.ChecksPassing() {
		t.Error("failing check reported passing")
	}
	s := m.Statuses()[0]
	if s.Healthy || s.Error != "disk full" {
		t.Errorf("status = %+v", s)
	}
}
