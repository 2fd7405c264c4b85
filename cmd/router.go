package main

import (
	"net/http"

	"github.com/angeloszaimis/fetch-orchestrator/internal/handler"
	"github.com/angeloszaimis/fetch-orchestrator/internal/metrics"
)

func setupRouter(fetchHandler *handler.FetchHandler, collector *metrics.Collector, exporter *metrics.Exporter, strategy string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/fetch", fetchHandler.Fetch)
	mux.HandleFunc("GET /v1/traces", fetchHandler.Traces)
	mux.HandleFunc("GET /v1/traces/last", fetchHandler.LastTrace)
	mux.HandleFunc("GET /v1/traces/stream", fetchHandler.Stream)
	mux.HandleFunc("GET /v1/health", fetchHandler.Health)
	mux.HandleFunc("GET /v1/breakers", fetchHandler.Breakers)
	mux.HandleFunc("GET /v1/stats", collector.Handler(strategy))
	mux.Handle("GET /metrics", exporter.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
