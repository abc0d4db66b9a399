package service

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/onet/v3/log"
)

var (
	requestCtr = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allosaur",
			Name:      "requests",
			Help:      "Incremented for each request received, labeled by request and result.",
		},
		[]string{"request", "result"},
	)
	updateChanges = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "allosaur",
			Name:      "update_changes",
			Help:      "Number of additions and deletions covered by the updates handed out.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	epochGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "allosaur",
			Name:      "epoch",
			Help:      "Current epoch of the accumulator, labeled by the role of the node.",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(requestCtr)
	prometheus.MustRegister(updateChanges)
	prometheus.MustRegister(epochGauge)
}

func observe(request string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	requestCtr.WithLabelValues(request, result).Inc()
}

// MetricsHandler serves the metrics of the service under /metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			fmt.Fprintln(rw, "Hi, I'm an allosaur metrics server!")
		} else {
			rw.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(rw, "404 not found")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ServeMetrics listens on addr and serves MetricsHandler. It only returns
// on error.
func ServeMetrics(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: MetricsHandler(),
	}
	log.Lvl1("Starting metrics server at", addr)
	return srv.ListenAndServe()
}
