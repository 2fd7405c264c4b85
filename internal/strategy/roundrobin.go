package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

type roundRobinStrategy struct {
	current uint64
}

func (rb *roundRobinStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	if len(providers) == 0 {
		return nil
	}

	n := atomic.AddUint64(&rb.current, 1)

	index := (n - 1) % uint64(len(providers))

	return rotate(providers, int(index))
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{
		current: 0,
	}
}
