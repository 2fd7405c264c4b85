package strategy

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

// weightedRoundRobinStrategy implements smooth weighted round-robin for the
// first choice. Each provider accumulates its weight per call, the highest
// current value leads, then it is reduced by the sum of all weights. The
// remaining providers follow by descending weight.
//
// Accumulators are kept per candidate set, since every asset class offers
// its own list.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[string]map[string]int
}

func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[string]map[string]int),
	}
}

func (w *weightedRoundRobinStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	if len(providers) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	set := signature(providers)
	current, ok := w.current[set]
	if !ok {
		current = make(map[string]int, len(providers))
		w.current[set] = current
	}

	totalWeight := 0
	var chosen *provider.Tracked

	for _, p := range providers {
		current[p.ID()] += p.Weight()
		totalWeight += p.Weight()

		if chosen == nil || current[p.ID()] > current[chosen.ID()] {
			chosen = p
		}
	}

	current[chosen.ID()] -= totalWeight

	rest := make([]*provider.Tracked, 0, len(providers)-1)
	for _, p := range providers {
		if p != chosen {
			rest = append(rest, p)
		}
	}
	slices.SortStableFunc(rest, func(a, b *provider.Tracked) int {
		return cmp.Compare(b.Weight(), a.Weight())
	})

	return append([]*provider.Tracked{chosen}, rest...)
}

func signature(providers []*provider.Tracked) string {
	ids := make([]string, len(providers))
	for i, p := range providers {
		ids[i] = p.ID()
	}
	return strings.Join(ids, ",")
}
