package dispatch

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

var (
	ErrNoCandidates = errors.New("no candidate providers")
	ErrExhausted    = errors.New("all providers failed")

	errBreakerTripped = errors.New("circuit opened during retries")
)

// ExhaustedError is returned when no provider produced a payload. Trace is
// the last attempt, carrying the full decision path and terminal category.
type ExhaustedError struct {
	Trace telemetry.Trace
	// Err is set when the caller's context ended the dispatch.
	Err error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%s for %s/%s after %d attempts, last %s: %s",
		ErrExhausted, e.Trace.Engine, e.Trace.Symbol, len(e.Trace.DecisionPath), e.Trace.Provider, e.Trace.Category)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
