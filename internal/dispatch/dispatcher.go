package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

const tracerName = "github.com/angeloszaimis/fetch-orchestrator/internal/dispatch"

// Settings tunes retries and attempt deadlines.
type Settings struct {
	MaxRetries     uint64
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         time.Duration
	AttemptTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxRetries:     2,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Jitter:         100 * time.Millisecond,
		AttemptTimeout: 10 * time.Second,
	}
}

// Request asks for one engine's data for a symbol. Candidates are provider
// ids in the order they should be tried.
type Request struct {
	Symbol         string
	CanonicalAsset string
	Engine         engine.Engine
	Candidates     []string
}

func (r Request) fetchSymbol() string {
	if r.CanonicalAsset != "" {
		return r.CanonicalAsset
	}
	return r.Symbol
}

// Result is the first successful attempt.
type Result struct {
	Provider string
	Payload  json.RawMessage
	Trace    telemetry.Trace
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithObserver registers fn to receive every recorded trace. fn runs on the
// dispatch path and must not block.
func WithObserver(fn func(telemetry.Trace)) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, fn) }
}

func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// Dispatcher is the only writer to the telemetry buffer and the breaker
// registry.
type Dispatcher struct {
	providers map[string]provider.Provider
	buffer    *telemetry.Buffer
	breakers  *circuitbreaker.Registry
	settings  Settings
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []func(telemetry.Trace)
	newID     func() string
}

func New(providers []provider.Provider, buffer *telemetry.Buffer, breakers *circuitbreaker.Registry, settings Settings, opts ...Option) *Dispatcher {
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = DefaultSettings().BaseDelay
	}

	d := &Dispatcher{
		providers: make(map[string]provider.Provider, len(providers)),
		buffer:    buffer,
		breakers:  breakers,
		settings:  settings,
		clock:     clock.Real{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		newID:     uuid.NewString,
	}
	for _, p := range providers {
		d.providers[p.ID()] = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run carries the state of one dispatch.
type run struct {
	req  Request
	path []string
	last *telemetry.Trace
	span trace.Span
}

// Dispatch tries the candidates in order and returns the first success. When
// every candidate fails it returns an *ExhaustedError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoCandidates, req.Engine, req.Symbol)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.fetch", trace.WithAttributes(
		attribute.String("fetch.symbol", req.Symbol),
		attribute.String("fetch.engine", string(req.Engine)),
		attribute.StringSlice("fetch.candidates", req.Candidates),
	))
	defer span.End()

	r := &run{req: req, span: span}

	for _, id := range req.Candidates {
		p, ok := d.providers[id]
		if !ok {
			d.logger.Warn("skipping unknown provider",
				slog.String("provider", id),
				slog.String("engine", string(req.Engine)),
			)
			continue
		}

		if res := d.tryProvider(ctx, r, p); res != nil {
			span.SetAttributes(attribute.String("fetch.provider", id))
			span.SetStatus(codes.Ok, "")
			return &Result{Provider: id, Payload: res.Payload, Trace: r.last.Clone()}, nil
		}

		if ctx.Err() != nil {
			break
		}
	}

	if r.last == nil {
		err := fmt.Errorf("%w: none of %v are configured", ErrNoCandidates, req.Candidates)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	exhausted := &ExhaustedError{Trace: r.last.Clone(), Err: ctx.Err()}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, string(exhausted.Trace.Category))

	d.logger.Warn("fetch exhausted all providers",
		slog.String("symbol", req.Symbol),
		slog.String("engine", string(req.Engine)),
		slog.Any("decision_path", exhausted.Trace.DecisionPath),
		slog.String("category", string(exhausted.Trace.Category)),
	)

	return nil, exhausted
}

// tryProvider runs the attempts against one provider and returns the
// response on success.
func (d *Dispatcher) tryProvider(ctx context.Context, r *run, p provider.Provider) *provider.Response {
	cb := d.breakers.Breaker(p.ID(), r.req.Engine)

	if !cb.Allow() {
		tr := d.newTrace(r, p.ID(), d.clock.Now())
		tr.Category = failure.CircuitOpen
		tr.ErrorMessage = fmt.Sprintf("circuit %s is open", cb.Key())
		d.record(r, tr)
		return nil
	}

	var (
		resp      *provider.Response
		attempts  int
		cancelled bool
	)

	_ = retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		if attempts > 0 && !cb.Allow() {
			return errBreakerTripped
		}

		res, tr := d.attempt(ctx, r, p, cb, attempts)
		attempts++
		if res != nil {
			resp = res
			return nil
		}

		attemptErr := errors.New(tr.ErrorMessage)
		if ctx.Err() != nil {
			cancelled = true
			return ctx.Err()
		}
		if failure.PolicyFor(tr.Category).Retryable {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})

	if resp != nil {
		return resp
	}

	// The caller went away before or between attempts.
	if ctx.Err() != nil && !cancelled {
		tr := d.newTrace(r, p.ID(), d.clock.Now())
		tr.Category = failure.Timeout
		tr.RetryCount = attempts
		tr.ErrorMessage = ctx.Err().Error()
		cb.RecordFailure()
		d.record(r, tr)
	}

	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, r *run, p provider.Provider, cb *circuitbreaker.CircuitBreaker, retryCount int) (*provider.Response, telemetry.Trace) {
	start := d.clock.Now()

	attemptCtx := ctx
	if d.settings.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.settings.AttemptTimeout)
		defer cancel()
	}

	res, err := p.Fetch(attemptCtx, provider.Request{Symbol: r.req.fetchSymbol(), Engine: r.req.Engine})
	if err == nil && res == nil {
		err = &provider.Error{Category: failure.DecodingError, Err: errors.New("provider returned no response")}
	}

	tr := d.newTrace(r, p.ID(), start)
	tr.Duration = d.clock.Now().Sub(start)
	tr.RetryCount = retryCount

	if err == nil {
		tr.Success = true
		tr.Endpoint = res.Endpoint
		tr.Bytes = res.Bytes
		tr.HTTPStatus = res.StatusCode
		cb.RecordSuccess()
		d.record(r, tr)
		return res, tr
	}

	category := provider.Classify(err)
	if ctx.Err() != nil {
		category = failure.Timeout
	}
	// An attempt that reached the provider is never short-circuited, and
	// every failure must carry a recordable category.
	if !category.Valid() || category == failure.CircuitOpen {
		category = failure.NetworkError
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		tr.Endpoint = perr.Endpoint
		tr.HTTPStatus = perr.StatusCode
		tr.BodyPrefix = perr.BodyPrefix
		tr.Bytes = perr.Bytes
	}
	tr.Category = category
	tr.ErrorMessage = err.Error()

	if failure.PolicyFor(category).BreakerFailure {
		cb.RecordFailure()
	}
	d.record(r, tr)

	d.logger.Debug("provider attempt failed",
		slog.String("provider", p.ID()),
		slog.String("engine", string(r.req.Engine)),
		slog.String("category", string(category)),
		slog.Int("retry_count", retryCount),
		slog.String("error", err.Error()),
	)

	return nil, tr
}

// newTrace appends provider to the decision path and starts a trace for it.
func (d *Dispatcher) newTrace(r *run, providerID string, start time.Time) telemetry.Trace {
	r.path = append(r.path, providerID)
	return telemetry.Trace{
		ID:             d.newID(),
		Engine:         r.req.Engine,
		Provider:       providerID,
		Symbol:         r.req.Symbol,
		CanonicalAsset: r.req.CanonicalAsset,
		StartedAt:      start,
		DecisionPath:   slices.Clone(r.path),
	}
}

func (d *Dispatcher) record(r *run, tr telemetry.Trace) {
	r.last = &tr

	if err := d.buffer.Record(tr); err != nil {
		d.logger.Error("failed to record trace",
			slog.String("trace_id", tr.ID),
			slog.String("error", err.Error()),
		)
	}

	for _, fn := range d.observers {
		fn(tr)
	}

	r.span.AddEvent("attempt", trace.WithAttributes(
		attribute.String("provider", tr.Provider),
		attribute.Bool("success", tr.Success),
		attribute.String("category", string(tr.Category)),
		attribute.Int("retry_count", tr.RetryCount),
		attribute.Int64("duration_ms", tr.Duration.Milliseconds()),
	))
}

func (d *Dispatcher) backoff() retry.Backoff {
	b := retry.NewExponential(d.settings.BaseDelay)
	if d.settings.Jitter > 0 {
		b = retry.WithJitter(d.settings.Jitter, b)
	}
	if d.settings.MaxDelay > 0 {
		b = retry.WithCappedDuration(d.settings.MaxDelay, b)
	}
	return retry.WithMaxRetries(d.settings.MaxRetries, b)
}
