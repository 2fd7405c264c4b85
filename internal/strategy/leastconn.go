package strategy

import (
	"cmp"
	"slices"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

type leastConnStrategy struct {
}

// Order sorts by active requests; ties keep the configured order.
func (l *leastConnStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	type scored struct {
		p     *provider.Tracked
		conns int
	}

	items := make([]scored, len(providers))
	for i, p := range providers {
		items[i] = scored{p: p, conns: p.ActiveRequests()}
	}

	slices.SortStableFunc(items, func(a, b scored) int {
		return cmp.Compare(a.conns, b.conns)
	})

	out := make([]*provider.Tracked, len(items))
	for i, it := range items {
		out[i] = it.p
	}
	return out
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
