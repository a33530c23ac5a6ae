package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    providerReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "aibatch",
            Name:      "provider_requests_total",
            Help:      "Total provider requests by provider, model and result",
        },
        []string{"provider", "model", "result"},
    )

    providerLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "aibatch",
            Name:      "provider_request_duration_seconds",
            Help:      "Duration of provider requests by provider and model",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"provider", "model"},
    )

    rowsProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "aibatch",
            Name:      "rows_processed_total",
            Help:      "Rows finished by result (done, done_degraded, failed, skipped)",
        },
        []string{"result"},
    )

    retriesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "aibatch",
            Name:      "retries_total",
            Help:      "Request retries by provider and model",
        },
        []string{"provider", "model"},
    )

    rowsInFlight = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "aibatch",
            Name:      "rows_in_flight",
            Help:      "Rows currently being processed by workers",
        },
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(providerReqs, providerLatency, rowsProcessed, retriesTotal, rowsInFlight)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr when configured; best-effort.
func Serve(addr string) {
    if addr == "" { return }
    mux := http.NewServeMux()
    mux.Handle("/metrics", Handler())
    go func() { _ = http.ListenAndServe(addr, mux) }()
}

func ObserveRequest(provider, model, result string, dur time.Duration) {
    providerReqs.WithLabelValues(provider, model, result).Inc()
    providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncRow(result string)               { rowsProcessed.WithLabelValues(result).Inc() }
func IncRetry(provider, model string)    { retriesTotal.WithLabelValues(provider, model).Inc() }
func RowStarted()                        { rowsInFlight.Inc() }
func RowFinished()                       { rowsInFlight.Dec() }
