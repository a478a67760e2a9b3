package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "simsweep_broadcast_"

var (
	updatesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "updates_total",
		Help: "Number of snapshots loaded and pushed to subscribers",
	})
	loadErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "load_errors_total",
		Help: "Number of snapshot files that could not be read or decoded",
	})
	droppedFramesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "dropped_frames_total",
		Help: "Number of frames discarded because a subscriber fell behind",
	})
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "subscribers",
		Help: "Number of active subscribers",
	})
)
