package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_runs_total",
		Help: "Total number of forecast runs by final status",
	}, []string{"status"})

	ForecastRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_run_duration_seconds",
		Help:    "Wall time of a forecast run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ForecastCorrectedRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forecast_corrected_ratio",
		Help: "Share of forecast rows replaced by the baseline projection in the last run",
	})

	RefillAdviceRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "refill_advice_rows",
		Help: "Rows written to each refill advice table by the last run",
	}, []string{"table"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
