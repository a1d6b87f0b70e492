package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveDecision("allow")
	m.ObserveDecision("allow")
	m.ObserveMutation("create", "ok")
	m.ObserveEmail("booking_confirmation", "sent")
	m.ObserveRequestLatency("/api/bookings", "POST", 0.03)

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("allow")); got != 2 {
		t.Fatalf("expected 2 allow decisions, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}
	for _, name := range []string{
		"physiobook_bookings_eligibility_decisions_total",
		"physiobook_bookings_mutations_total",
		"physiobook_notify_emails_total",
		"physiobook_http_request_latency_seconds",
	} {
		if byName[name] == nil {
			t.Fatalf("expected metric family %s to be registered", name)
		}
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveDecision("allow")
	m.ObserveMutation("cancel", "error")
	m.ObserveEmail("contact_form", "error")
	m.ObserveRequestLatency("/health", "GET", 0.001)
}
