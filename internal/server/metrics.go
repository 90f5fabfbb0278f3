package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Global only, no per-key labels: key cardinality is unbounded.
var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kvs_requests_total",
		Help: "Requests served, by operation ('invalid' when the request line did not parse)",
	}, []string{"op"})
	requestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kvs_request_errors_total",
		Help: "Requests answered with an error response, by error kind",
	}, []string{"kind"})
	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kvs_request_duration_seconds",
		Help:    "Time from first read to response written",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestErrors, requestDuration)
}

// ServeMetrics serves Prometheus metrics on its own listener. Empty addr
// disables it. If you already expose Prometheus elsewhere, leave it empty
// and register promhttp yourself.
func ServeMetrics(addr string, lg *log.Entry) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			lg.WithFields(log.Fields{
				"addr":  addr,
				"cause": err,
			}).Warning("Metrics endpoint failed")
		}
	}()
}
