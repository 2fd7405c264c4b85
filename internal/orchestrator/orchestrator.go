package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/angeloszaimis/fetch-orchestrator/internal/catalog"
	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/dispatch"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/health"
	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
	"github.com/angeloszaimis/fetch-orchestrator/internal/strategy"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

type Config struct {
	Catalog   *catalog.Catalog
	Providers []*provider.Tracked
	Strategy  strategy.Strategy
	Buffer    *telemetry.Buffer
	Breakers  *circuitbreaker.Registry
	Dispatch  dispatch.Settings
	Health    health.Settings
	Clock     clock.Clock
	Logger    *slog.Logger
	// DispatchOptions are passed through to the dispatcher.
	DispatchOptions []dispatch.Option
	// OnFetch receives the final trace of every dispatched fetch.
	OnFetch func(engine.Engine, telemetry.Trace)
}

type Orchestrator struct {
	catalog    *catalog.Catalog
	providers  map[string]*provider.Tracked
	strategy   strategy.Strategy
	dispatcher *dispatch.Dispatcher
	buffer     *telemetry.Buffer
	breakers   *circuitbreaker.Registry
	health     *health.Aggregator
	logger     *slog.Logger
	onFetch    func(engine.Engine, telemetry.Trace)
}

type engineSupporter interface {
	Supports(engine.Engine) bool
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Buffer == nil || cfg.Breakers == nil {
		return nil, errors.New("telemetry buffer and breaker registry are required")
	}
	if cfg.Strategy == nil {
		cfg.Strategy = strategy.NewPriorityStrategy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		catalog:   cfg.Catalog,
		providers: make(map[string]*provider.Tracked, len(cfg.Providers)),
		strategy:  cfg.Strategy,
		buffer:    cfg.Buffer,
		breakers:  cfg.Breakers,
		health:    health.NewAggregator(cfg.Buffer, cfg.Breakers, cfg.Health, cfg.Clock),
		logger:    cfg.Logger,
		onFetch:   cfg.OnFetch,
	}

	plain := make([]provider.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if _, dup := o.providers[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.ID())
		}
		o.providers[p.ID()] = p
		plain = append(plain, p)
	}

	for _, cl := range cfg.Catalog.Classes() {
		for _, id := range cl.Providers {
			if _, ok := o.providers[id]; !ok {
				o.logger.Warn("asset class references unknown provider",
					slog.String("class", cl.Name),
					slog.String("provider", id),
				)
			}
		}
	}

	opts := append([]dispatch.Option{
		dispatch.WithClock(cfg.Clock),
		dispatch.WithLogger(cfg.Logger),
	}, cfg.DispatchOptions...)
	o.dispatcher = dispatch.New(plain, cfg.Buffer, cfg.Breakers, cfg.Dispatch, opts...)

	return o, nil
}

// Fetch resolves symbol, orders the providers of its asset class and
// dispatches the request.
func (o *Orchestrator) Fetch(ctx context.Context, symbol string, e engine.Engine) (*dispatch.Result, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknown, e)
	}

	asset, err := o.catalog.Resolve(symbol)
	if err != nil {
		return nil, err
	}

	candidates := o.candidates(asset, e)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: asset class %s has no provider for %s", dispatch.ErrNoCandidates, asset.Class, e)
	}

	ordered := o.strategy.Order(asset.Canonical, candidates)
	ids := make([]string, len(ordered))
	for i, p := range ordered {
		ids[i] = p.ID()
	}

	res, err := o.dispatcher.Dispatch(ctx, dispatch.Request{
		Symbol:         asset.Symbol,
		CanonicalAsset: asset.Canonical,
		Engine:         e,
		Candidates:     ids,
	})

	if o.onFetch != nil {
		var ex *dispatch.ExhaustedError
		switch {
		case err == nil:
			o.onFetch(e, res.Trace)
		case errors.As(err, &ex):
			o.onFetch(e, ex.Trace)
		}
	}

	return res, err
}

func (o *Orchestrator) candidates(asset catalog.Asset, e engine.Engine) []*provider.Tracked {
	out := make([]*provider.Tracked, 0, len(asset.Providers))
	for _, id := range asset.Providers {
		p, ok := o.providers[id]
		if !ok {
			continue
		}
		if s, ok := p.Provider.(engineSupporter); ok && !s.Supports(e) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RecentTraces returns up to limit of the latest traces, oldest first.
func (o *Orchestrator) RecentTraces(limit int) []telemetry.Trace {
	return o.buffer.Recent(limit)
}

// LastTrace returns the most recent trace for e.
func (o *Orchestrator) LastTrace(e engine.Engine) (telemetry.Trace, bool) {
	return o.buffer.LastForEngine(e)
}

func (o *Orchestrator) CurrentHealth() health.Status {
	return o.health.CurrentStatus()
}

func (o *Orchestrator) HealthReport() health.Report {
	return o.health.Report()
}

func (o *Orchestrator) HealthAggregator() *health.Aggregator {
	return o.health
}

func (o *Orchestrator) Breakers() []circuitbreaker.Record {
	return o.breakers.Snapshot()
}

// SubscribeTraces streams newly recorded traces until the returned cancel
// function is called.
func (o *Orchestrator) SubscribeTraces(buffer int) (<-chan telemetry.Trace, func()) {
	return o.buffer.Subscribe(buffer)
}
