package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // WebhookDeliveries counts webhook delivery attempts by event type and outcome
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
    // WebhookRetriesPending is the number of scheduled, not yet started retries
    WebhookRetriesPending = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "webhook_retries_pending", Help: "Scheduled webhook retries not yet executed."},
    )

    // DrGreenRequests counts outbound Dr. Green API calls by method and outcome
    DrGreenRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "drgreen_requests_total", Help: "Outbound Dr. Green API requests."},
        []string{"method", "outcome"},
    )
    DrGreenDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "drgreen_request_duration_seconds", Help: "Outbound Dr. Green API latency in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method"},
    )
    // DrGreenBreakerState is 0 closed, 1 half-open, 2 open
    DrGreenBreakerState = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "drgreen_circuit_breaker_state", Help: "Dr. Green client circuit breaker state (0 closed, 1 half-open, 2 open)."},
    )
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(WebhookRetriesPending)
        Registry.MustRegister(DrGreenRequests)
        Registry.MustRegister(DrGreenDuration)
        Registry.MustRegister(DrGreenBreakerState)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

var regOnce sync.Once
