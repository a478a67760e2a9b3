package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "simsweep_supervisor_"

var (
	startsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "starts_total",
		Help: "Number of processes started",
	})
	finishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "finished_total",
		Help: "Number of processes that reached a terminal state, grouped by state",
	}, []string{"state"})
	forcedKillsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "forced_kills_total",
		Help: "Number of processes that ignored termination and were killed",
	})
	runningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "running",
		Help: "Number of processes currently supervised",
	})
)
