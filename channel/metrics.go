package channel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of a Server.
type Metrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	PushesTotal  *prometheus.CounterVec
}

// NewMetrics creates the channel collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldbridge_channel_calls_total",
			Help: "Total number of method calls received over the channel.",
		}, []string{"method", "status"}),

		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ldbridge_channel_call_duration_seconds",
			Help:    "Time until a method call settled, in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldbridge_channel_pushes_total",
			Help: "Total number of calls pushed to the application.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.CallsTotal, m.CallDuration, m.PushesTotal)
	}
	return m
}

func (m *Metrics) observeCall(method, status string, start time.Time) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(method, status).Inc()
	m.CallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observePush(method string) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(method).Inc()
}
