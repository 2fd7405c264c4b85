//go:build ignore

// mockprovider is a fake market-data vendor for exercising the orchestrator
// against real HTTP. Its failure mode can be switched at runtime.
//
// Usage:
//
//	go run mockprovider.go -port 9101 -mode ok
//	curl -X POST 'localhost:9101/admin/mode?mode=server-error'
//
// Modes: ok, server-error, rate-limit, auth, premium-note, bad-json, slow.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

var modes = map[string]bool{
	"ok": true, "server-error": true, "rate-limit": true, "auth": true,
	"premium-note": true, "bad-json": true, "slow": true,
}

type server struct {
	name     string
	mode     atomic.Value
	failRate float64
	latency  time.Duration
	calls    atomic.Int64
	log      *slog.Logger
}

func main() {
	port := flag.Int("port", 9101, "port to listen on")
	name := flag.String("name", "", "provider name reported in payloads")
	mode := flag.String("mode", "ok", "initial failure mode")
	failRate := flag.Float64("fail-rate", 0, "probability of a 500 while in ok mode")
	latency := flag.Duration("latency", 20*time.Millisecond, "base response latency")
	flag.Parse()

	if !modes[*mode] {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	if *name == "" {
		*name = fmt.Sprintf("mock-%d", *port)
	}

	s := &server{
		name:     *name,
		failRate: *failRate,
		latency:  *latency,
		log:      slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.TimeOnly})),
	}
	s.mode.Store(*mode)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/mode", s.setMode)
	mux.HandleFunc("GET /admin/stats", s.stats)
	mux.HandleFunc("GET /{engine}/{symbol}", s.serve)
	mux.HandleFunc("GET /v2/{engine}/{symbol}", s.serve)

	addr := fmt.Sprintf(":%d", *port)
	s.log.Info("Mock provider listening", slog.String("addr", addr), slog.String("mode", *mode))
	if err := http.ListenAndServe(addr, mux); err != nil {
		s.log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func (s *server) serve(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	engine, symbol := r.PathValue("engine"), strings.ToUpper(r.PathValue("symbol"))
	mode := s.mode.Load().(string)

	s.log.Info("request",
		slog.Int64("n", n),
		slog.String("engine", engine),
		slog.String("symbol", symbol),
		slog.String("mode", mode),
	)

	time.Sleep(s.latency + time.Duration(rand.Int64N(int64(s.latency)+1)))

	switch {
	case mode == "server-error", mode == "ok" && rand.Float64() < s.failRate:
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	case mode == "rate-limit":
		w.Header().Set("Retry-After", "60")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	case mode == "auth":
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	case mode == "premium-note":
		writeJSON(w, map[string]string{"Information": "This is a premium endpoint. Upgrade your plan."})
		return
	case mode == "bad-json":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 1`))
		return
	case mode == "slow":
		time.Sleep(30 * time.Second)
	}

	writeJSON(w, map[string]any{
		"request_id": uuid.NewString(),
		"provider":   s.name,
		"engine":     engine,
		"symbol":     symbol,
		"price":      100 + rand.Float64()*50,
		"as_of":      time.Now().UTC(),
	})
}

func (s *server) setMode(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if !modes[mode] {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	prev := s.mode.Swap(mode)
	s.log.Warn("Mode changed", slog.Any("from", prev), slog.String("to", mode))
	writeJSON(w, map[string]string{"mode": mode})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"name":  s.name,
		"mode":  s.mode.Load(),
		"calls": s.calls.Load(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
