package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows. The
// registerer is injected so nothing in this package touches global state.
type BookingMetrics struct {
	decisionsTotal *prometheus.CounterVec
	mutationsTotal *prometheus.CounterVec
	emailTotal     *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiobook",
			Subsystem: "bookings",
			Name:      "eligibility_decisions_total",
			Help:      "Eligibility engine verdicts",
		}, []string{"verdict"}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiobook",
			Subsystem: "bookings",
			Name:      "mutations_total",
			Help:      "Booking create/cancel/replace attempts",
		}, []string{"operation", "outcome"}),
		emailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiobook",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Outbound transactional emails",
		}, []string{"template", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physiobook",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "Latency of HTTP request handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.mutationsTotal, m.emailTotal, m.requestLatency)
	return m
}

func (m *BookingMetrics) ObserveDecision(verdict string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(verdict).Inc()
}

func (m *BookingMetrics) ObserveMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveEmail(template, outcome string) {
	if m == nil {
		return
	}
	m.emailTotal.WithLabelValues(template, outcome).Inc()
}

func (m *BookingMetrics) ObserveRequestLatency(route, method string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(route, method).Observe(seconds)
}
