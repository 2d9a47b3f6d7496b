// Package metrics exposes prometheus instrumentation for crawl runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawlflow_pages_visited_total",
			Help: "Total number of pages visited.",
		},
	)

	ItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawlflow_items_extracted_total",
			Help: "Total number of items extracted.",
		},
	)

	FieldErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawlflow_field_errors_total",
			Help: "Total number of field extractions that resolved to null because of an error.",
		},
	)

	WorkflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlflow_workflow_steps_total",
			Help: "Total number of workflow step executions.",
		},
		[]string{"action", "status"}, // status: ok, skipped, failed
	)

	PageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawlflow_page_duration_seconds",
			Help:    "Duration of processing a single page including workflows.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
	)
)

// Serve exposes the /metrics endpoint on addr. It blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
