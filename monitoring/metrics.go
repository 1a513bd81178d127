package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krishimitra_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "krishimitra_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "krishimitra_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	RateLimitRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "krishimitra_rate_limit_rejects_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
	)

	PanicRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "krishimitra_panic_recoveries_total",
			Help: "Total number of panics recovered in HTTP handlers",
		},
	)

	// 模型指标
	ModelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krishimitra_model_loads_total",
			Help: "Model load attempts by model and result",
		},
		[]string{"model", "result"},
	)

	ModelReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "krishimitra_model_ready",
			Help: "1 when the last load of a model succeeded",
		},
		[]string{"model"},
	)

	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krishimitra_predictions_total",
			Help: "Predictions served by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	// 外部数据源
	WeatherFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krishimitra_weather_fallbacks_total",
			Help: "Times fallback values were served instead of provider data",
		},
		[]string{"kind"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "krishimitra_websocket_clients",
			Help: "Connected sensor stream clients",
		},
	)
)

// ObserveModelLoad records the outcome of one model load attempt. It fits
// ml.LoadObserver.
func ObserveModelLoad(model string, err error) {
	if err != nil {
		ModelLoads.WithLabelValues(model, "error").Inc()
		ModelReady.WithLabelValues(model).Set(0)
		return
	}
	ModelLoads.WithLabelValues(model, "ok").Inc()
	ModelReady.WithLabelValues(model).Set(1)
}

// ObservePrediction counts one prediction request by outcome label
// ("ok", "invalid", "unavailable", "error").
func ObservePrediction(model, outcome string) {
	Predictions.WithLabelValues(model, outcome).Inc()
}
