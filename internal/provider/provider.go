package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
)

// Request is a single data request against one provider.
type Request struct {
	Symbol string
	Engine engine.Engine
}

// Response is a successful provider payload.
type Response struct {
	Endpoint   string
	StatusCode int
	Bytes      int
	Payload    json.RawMessage
}

// Provider is an external market-data source.
type Provider interface {
	ID() string
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Error is a classified provider failure.
type Error struct {
	Category   failure.Category
	StatusCode int
	Endpoint   string
	BodyPrefix string
	Bytes      int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
