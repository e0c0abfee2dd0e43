package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsCaptured counts packets consumed by the flow aggregator
	PacketsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "packets_captured_total",
			Help:      "Total number of packets consumed by the flow aggregator",
		},
		[]string{"interface"},
	)

	// CyclesTotal counts completed adaptive-loop cycles
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "cycles_total",
			Help:      "Total number of completed defense cycles",
		},
	)

	// AnomaliesTotal counts devices flagged anomalous
	AnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "anomalies_total",
			Help:      "Total number of anomalous device observations",
		},
	)

	// EnforcementsTotal counts firewall/wireless mutations by action
	EnforcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "enforcements_total",
			Help:      "Total number of enforcement actions issued",
		},
		[]string{"action"},
	)

	// EnforcementErrors counts failed enforcement invocations
	EnforcementErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "enforcement_errors_total",
			Help:      "Total number of failed enforcement actions",
		},
		[]string{"action"},
	)

	// DevicesKnown tracks the registry size
	DevicesKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trapwire",
			Name:      "devices_known",
			Help:      "Number of devices in the registry",
		},
	)

	// RetrainsTotal counts detector model retrains
	RetrainsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trapwire",
			Name:      "detector_retrains_total",
			Help:      "Total number of detector retrain runs",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(PacketsCaptured)
		prometheus.DefaultRegisterer.Register(CyclesTotal)
		prometheus.DefaultRegisterer.Register(AnomaliesTotal)
		prometheus.DefaultRegisterer.Register(EnforcementsTotal)
		prometheus.DefaultRegisterer.Register(EnforcementErrors)
		prometheus.DefaultRegisterer.Register(DevicesKnown)
		prometheus.DefaultRegisterer.Register(RetrainsTotal)
	})
}
