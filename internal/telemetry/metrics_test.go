package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.BackendDuration == nil {
		t.Error("BackendDuration is nil")
	}
	if m.BackendErrors == nil {
		t.Error("BackendErrors is nil")
	}
	if m.ActivityQueueLength == nil {
		t.Error("ActivityQueueLength is nil")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("GET", "/v1/leaderboard", "200").Inc()
	m.BackendErrors.WithLabelValues("community", "502").Inc()
	m.BackendDuration.WithLabelValues("community", "subscription_count").Observe(0.05)
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("GET", "/v1/leaderboard").Observe(0.123)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"campus_requests_total",
		"campus_backend_errors_total",
		"campus_backend_duration_seconds",
		"campus_active_requests",
		"campus_request_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

func TestRegisterCache(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	stats := CacheStats{Hits: 7, AbsentHits: 2, Misses: 3}
	m.RegisterCache("subscriptions", func() CacheStats { return stats })
	m.RegisterCache("reactions", func() CacheStats { return CacheStats{} })

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() != "campus_cache_hits_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "cache" && l.GetValue() == "subscriptions" {
					found = true
					if got := metric.GetCounter().GetValue(); got != 7 {
						t.Errorf("hits for subscriptions = %v, want 7", got)
					}
				}
			}
		}
	}
	if !found {
		t.Error("campus_cache_hits_total{cache=subscriptions} not found")
	}
}
