//go:build ignore

// cbcheck verifies breaker and fallback behavior of a running orchestrator
// by switching a mock provider into a failure mode.
//
// Usage:
//
//	go run cbcheck.go -orchestrator http://localhost:8080 -provider http://localhost:9101 -provider-id mock-primary
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type trace struct {
	Provider     string   `json:"provider"`
	Success      bool     `json:"success"`
	Category     string   `json:"category"`
	DecisionPath []string `json:"decision_path"`
}

type fetchResult struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
	Trace    trace  `json:"trace"`
}

type breaker struct {
	Provider            string `json:"provider"`
	Engine              string `json:"engine"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

func main() {
	var (
		orch       = flag.String("orchestrator", "http://localhost:8080", "Orchestrator URL")
		mock       = flag.String("provider", "http://localhost:9101", "Mock provider URL")
		providerID = flag.String("provider-id", "mock-primary", "Provider id of the mock in the orchestrator config")
		symbol     = flag.String("symbol", "AAPL", "Symbol routed to the mock first")
		requests   = flag.Int("requests", 10, "Requests per phase")
	)
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}

	fmt.Println(colorCyan + "━━━ BREAKER & FALLBACK CHECK ━━━" + colorReset)

	fmt.Println(colorBlue + "\nPhase 1: normal operation" + colorReset)
	setMode(client, *mock, "ok")
	hits := run(client, *orch, *symbol, *requests)
	report(hits)
	if hits[*providerID] == 0 {
		fmt.Println(colorYellow + "  ⚠ mock provider served nothing; is it first in the asset class?" + colorReset)
	}

	fmt.Println(colorBlue + "\nPhase 2: provider returns 500" + colorReset)
	setMode(client, *mock, "server-error")
	hits = run(client, *orch, *symbol, *requests)
	report(hits)

	state := breakerState(client, *orch, *providerID)
	if state == "open" {
		fmt.Println(colorGreen + "  ✓ breaker for " + *providerID + "/quote is open" + colorReset)
	} else {
		fmt.Printf(colorRed+"  ✗ breaker state is %q, expected open\n"+colorReset, state)
	}

	fmt.Println(colorBlue + "\nPhase 3: provider recovers" + colorReset)
	setMode(client, *mock, "ok")
	fmt.Println("  breaker stays open until its backoff elapses; the next probe closes it")
	fmt.Printf("  current state: %s\n", breakerState(client, *orch, *providerID))

	health := getJSON[map[string]any](client, *orch+"/v1/health")
	fmt.Printf("\n  system health: %v (success ratio %v)\n", health["status"], health["success_ratio"])
}

func run(client *http.Client, orch, symbol string, n int) map[string]int {
	hits := map[string]int{}
	for i := 0; i < n; i++ {
		u := orch + "/v1/fetch?engine=quote&symbol=" + url.QueryEscape(symbol)
		resp, err := client.Get(u)
		if err != nil {
			fmt.Printf(colorRed+"  request %d: %v\n"+colorReset, i+1, err)
			continue
		}
		var res fetchResult
		_ = json.NewDecoder(resp.Body).Decode(&res)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf(colorYellow+"  request %d: status=%d path=%v category=%s\n"+colorReset,
				i+1, resp.StatusCode, res.Trace.DecisionPath, res.Trace.Category)
			hits["<failed>"]++
			continue
		}
		hits[res.Provider]++
		if len(res.Trace.DecisionPath) > 1 {
			fmt.Printf("  request %d: fell back along %v\n", i+1, res.Trace.DecisionPath)
		}
	}
	return hits
}

func report(hits map[string]int) {
	for p, n := range hits {
		fmt.Printf("    %s → %d\n", p, n)
	}
}

func breakerState(client *http.Client, orch, providerID string) string {
	for _, b := range getJSON[[]breaker](client, orch+"/v1/breakers") {
		if b.Provider == providerID && b.Engine == "quote" {
			return b.State
		}
	}
	return "absent"
}

func setMode(client *http.Client, mock, mode string) {
	resp, err := client.Post(mock+"/admin/mode?mode="+mode, "", nil)
	if err != nil {
		fmt.Printf(colorRed+"  could not switch mock to %s: %v\n"+colorReset, mode, err)
		os.Exit(1)
	}
	resp.Body.Close()
}

func getJSON[T any](client *http.Client, u string) T {
	var v T
	resp, err := client.Get(u)
	if err != nil {
		fmt.Printf(colorRed+"  GET %s: %v\n"+colorReset, u, err)
		return v
	}
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(&v)
	return v
}
