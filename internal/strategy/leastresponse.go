package strategy

import (
	"cmp"
	"slices"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

type leastResponseStrategy struct{}

// Order ranks providers by EWMA response time scaled by in-flight load.
// Providers without a sample score zero so they get tried.
func (l *leastResponseStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	type scored struct {
		p     *provider.Tracked
		score time.Duration
	}

	items := make([]scored, len(providers))
	for i, p := range providers {
		ewma := p.EWMATime()
		items[i] = scored{p: p, score: ewma * (time.Duration(p.ActiveRequests()) + 1)}
	}

	slices.SortStableFunc(items, func(a, b scored) int {
		return cmp.Compare(a.score, b.score)
	})

	out := make([]*provider.Tracked, len(items))
	for i, it := range items {
		out[i] = it.p
	}
	return out
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}
