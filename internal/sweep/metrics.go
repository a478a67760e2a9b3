package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	variantsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simsweep_sweep_variants_total",
		Help: "Number of sweep variants run, grouped by final status",
	}, []string{"status"})
	variantDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "simsweep_sweep_variant_duration_seconds",
		Help:    "Wall time of one sweep variant",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
