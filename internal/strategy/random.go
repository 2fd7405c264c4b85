package strategy

import (
	"math/rand/v2"
	"slices"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

type randomStrategy struct{}

func (r *randomStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	out := slices.Clone(providers)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
