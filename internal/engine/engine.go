// Package engine enumerates the analytical subsystems that issue market-data
// requests. The engine tag isolates circuit breakers per subsystem.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Engine identifies the subsystem that initiated a request.
type Engine string

const (
	Quote        Engine = "quote"
	Chart        Engine = "chart"
	Fundamentals Engine = "fundamentals"
	News         Engine = "news"
	Screener     Engine = "screener"
	Validation   Engine = "validation"
)

var ErrUnknown = errors.New("unknown engine")

var known = []Engine{Quote, Chart, Fundamentals, News, Screener, Validation}

// All returns every known engine in declaration order.
func All() []Engine {
	out := make([]Engine, len(known))
	copy(out, known)
	return out
}

// Parse converts a case-insensitive name into an Engine.
func Parse(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return e, nil
}

func (e Engine) Valid() bool {
	for _, k := range known {
		if e == k {
			return true
		}
	}
	return false
}

func (e Engine) String() string {
	return string(e)
}
