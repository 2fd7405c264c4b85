// Package providertest offers scripted providers for exercising fetch
// orchestration without a network.
package providertest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

// Outcome is one scripted result.
type Outcome struct {
	Category   failure.Category
	StatusCode int
	Payload    string
	Delay      time.Duration
	// Err is returned verbatim when set.
	Err error
	// Block waits until the request context ends.
	Block bool
}

// OK returns a successful outcome carrying payload.
func OK(payload string) Outcome {
	return Outcome{Payload: payload, StatusCode: 200}
}

// Fail returns a failed outcome of category c.
func Fail(c failure.Category) Outcome {
	return Outcome{Category: c}
}

// Error returns an outcome that fails with err as is.
func Error(err error) Outcome {
	return Outcome{Err: err}
}

// Hang returns an outcome that blocks until cancellation.
func Hang() Outcome {
	return Outcome{Block: true}
}

// Scripted replays outcomes in order. Once the script is exhausted the
// last outcome repeats; an empty script always succeeds.
type Scripted struct {
	id       string
	mutex    sync.Mutex
	outcomes []Outcome
	calls    []provider.Request
}

func New(id string, outcomes ...Outcome) *Scripted {
	return &Scripted{id: id, outcomes: outcomes}
}

func (s *Scripted) ID() string {
	return s.id
}

// Script replaces the remaining outcomes.
func (s *Scripted) Script(outcomes ...Outcome) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.outcomes = outcomes
}

// Calls returns the number of Fetch invocations so far.
func (s *Scripted) Calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.calls)
}

// Requests returns a copy of every request received.
func (s *Scripted) Requests() []provider.Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]provider.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Scripted) next(req provider.Request) Outcome {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.calls = append(s.calls, req)
	if len(s.outcomes) == 0 {
		return OK(`{"ok":true}`)
	}
	o := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return o
}

func (s *Scripted) Fetch(ctx context.Context, req provider.Request) (*provider.Response, error) {
	o := s.next(req)
	endpoint := "/" + string(req.Engine) + "/" + req.Symbol

	if o.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if o.Delay > 0 {
		timer := time.NewTimer(o.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if o.Err != nil {
		return nil, o.Err
	}

	if o.Category != "" {
		return nil, &provider.Error{
			Category:   o.Category,
			StatusCode: o.StatusCode,
			Endpoint:   endpoint,
			Err:        errScripted(o.Category),
		}
	}

	payload := o.Payload
	if payload == "" {
		payload = `{}`
	}
	return &provider.Response{
		Endpoint:   endpoint,
		StatusCode: o.StatusCode,
		Bytes:      len(payload),
		Payload:    json.RawMessage(payload),
	}, nil
}

type errScripted failure.Category

func (e errScripted) Error() string {
	return "scripted " + string(e)
}
