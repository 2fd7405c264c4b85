package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
)

// MaxBodyPrefix bounds the diagnostic response body kept on a trace.
const MaxBodyPrefix = 256

var ErrInvalidTrace = errors.New("invalid trace")

// Trace records the outcome of a single provider attempt.
type Trace struct {
	ID             string           `json:"id"`
	Engine         engine.Engine    `json:"engine"`
	Provider       string           `json:"provider"`
	Endpoint       string           `json:"endpoint,omitempty"`
	Symbol         string           `json:"symbol"`
	CanonicalAsset string           `json:"canonical_asset,omitempty"`
	Success        bool             `json:"success"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration"`
	Bytes          int              `json:"bytes"`
	HTTPStatus     int              `json:"http_status,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	BodyPrefix     string           `json:"body_prefix,omitempty"`
	Category       failure.Category `json:"category,omitempty"`
	RetryCount     int              `json:"retry_count"`
	DecisionPath   []string         `json:"decision_path"`
}

// Validate checks the structural invariants of a trace: the failure category
// is set exactly when the attempt failed.
func (t Trace) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTrace)
	}
	if t.Success && t.Category != "" {
		return fmt.Errorf("%w: successful trace %s carries category %s", ErrInvalidTrace, t.ID, t.Category)
	}
	if !t.Success && !t.Category.Valid() {
		return fmt.Errorf("%w: failed trace %s has category %q", ErrInvalidTrace, t.ID, t.Category)
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("%w: negative retry count", ErrInvalidTrace)
	}
	return nil
}

// Clone returns a deep copy.
func (t Trace) Clone() Trace {
	t.DecisionPath = slices.Clone(t.DecisionPath)
	return t
}

// Fallback reports whether more than one provider took part in the request.
func (t Trace) Fallback() bool {
	for _, p := range t.DecisionPath {
		if p != t.DecisionPath[0] {
			return true
		}
	}
	return false
}

// TruncateBody cuts a response body down to MaxBodyPrefix bytes.
func TruncateBody(body []byte) string {
	if len(body) > MaxBodyPrefix {
		body = body[:MaxBodyPrefix]
	}
	return string(body)
}
