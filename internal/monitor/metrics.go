package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simsweep_monitor_requests_total",
		Help: "HTTP requests served by the monitor",
	},
	[]string{"method", "route", "code"},
)
