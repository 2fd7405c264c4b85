package health

import (
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

type Status string

const (
	Operational Status = "operational"
	Degraded    Status = "degraded"
	Critical    Status = "critical"
)

// Level orders statuses for gauges: 0 operational, 1 degraded, 2 critical.
func (s Status) Level() int {
	switch s {
	case Operational:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

func (s Status) String() string {
	return string(s)
}

type Settings struct {
	// WindowSize is the number of most recent traces considered.
	WindowSize int
	// WindowDuration further limits the window by age when positive.
	WindowDuration       time.Duration
	DegradedRatio        float64
	CriticalRatio        float64
	CriticalOpenFraction float64
}

func DefaultSettings() Settings {
	return Settings{
		WindowSize:           100,
		DegradedRatio:        0.90,
		CriticalRatio:        0.70,
		CriticalOpenFraction: 0.5,
	}
}

// Report is a status together with the inputs it was computed from.
type Report struct {
	Status        Status    `json:"status"`
	SuccessRatio  float64   `json:"success_ratio"`
	Samples       int       `json:"samples"`
	Successes     int       `json:"successes"`
	OpenBreakers  int       `json:"open_breakers"`
	TotalBreakers int       `json:"total_breakers"`
	OpenFraction  float64   `json:"open_fraction"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type TraceSource interface {
	Recent(n int) []telemetry.Trace
}

type BreakerSource interface {
	Snapshot() []circuitbreaker.Record
}

type Aggregator struct {
	traces   TraceSource
	breakers BreakerSource
	settings Settings
	clock    clock.Clock
}

func NewAggregator(traces TraceSource, breakers BreakerSource, settings Settings, clk clock.Clock) *Aggregator {
	if settings.WindowSize <= 0 {
		settings.WindowSize = DefaultSettings().WindowSize
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{traces: traces, breakers: breakers, settings: settings, clock: clk}
}

func (a *Aggregator) CurrentStatus() Status {
	return a.Report().Status
}

// Report takes separate snapshots of the buffer and the registry, so the two
// inputs may be a few records apart under concurrent dispatches.
func (a *Aggregator) Report() Report {
	now := a.clock.Now()
	r := Report{GeneratedAt: now}

	var cutoff time.Time
	if a.settings.WindowDuration > 0 {
		cutoff = now.Add(-a.settings.WindowDuration)
	}

	for _, t := range a.traces.Recent(a.settings.WindowSize) {
		// Short-circuits are decisions, not provider outcomes.
		if t.Category == failure.CircuitOpen {
			continue
		}
		if !cutoff.IsZero() && t.StartedAt.Before(cutoff) {
			continue
		}
		r.Samples++
		if t.Success {
			r.Successes++
		}
	}

	r.SuccessRatio = 1
	if r.Samples > 0 {
		r.SuccessRatio = float64(r.Successes) / float64(r.Samples)
	}

	for _, rec := range a.breakers.Snapshot() {
		r.TotalBreakers++
		if rec.State == circuitbreaker.StateOpen {
			r.OpenBreakers++
		}
	}
	if r.TotalBreakers > 0 {
		r.OpenFraction = float64(r.OpenBreakers) / float64(r.TotalBreakers)
	}

	r.Status = a.classify(r)
	return r
}

func (a *Aggregator) classify(r Report) Status {
	switch {
	case r.OpenFraction > a.settings.CriticalOpenFraction,
		r.SuccessRatio < a.settings.CriticalRatio:
		return Critical
	case r.OpenBreakers > 0,
		r.SuccessRatio < a.settings.DegradedRatio:
		return Degraded
	default:
		return Operational
	}
}
