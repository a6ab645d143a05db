package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics counts bidding-window sweep outcomes per order.
type SweepMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep outcome counter on the provided
// registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bid_sweep_orders_total",
		Help: "Expired bidding windows processed by the sweeper, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &SweepMetrics{outcomes: outcomes}
}

// IncAutoSelected counts an order resolved with a winner.
func (s *SweepMetrics) IncAutoSelected() {
	s.inc("auto_selected")
}

// IncExpiredNoOffers counts an order closed without offers.
func (s *SweepMetrics) IncExpiredNoOffers() {
	s.inc("expired_no_offers")
}

// IncFailed counts an order the sweep could not resolve.
func (s *SweepMetrics) IncFailed() {
	s.inc("failed")
}

func (s *SweepMetrics) inc(outcome string) {
	if s == nil || s.outcomes == nil {
		return
	}
	s.outcomes.WithLabelValues(outcome).Inc()
}
