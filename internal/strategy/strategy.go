package strategy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

const (
	Priority       = "priority"
	RoundRobin     = "round-robin"
	Random         = "random"
	LeastConn      = "least-conn"
	LeastResponse  = "least-response"
	Weighted       = "weighted"
	ConsistentHash = "consistent-hash"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

type Strategy interface {
	Order(symbol string, providers []*provider.Tracked) []*provider.Tracked
}

// Names lists every supported strategy.
func Names() []string {
	return []string{Priority, RoundRobin, Random, LeastConn, LeastResponse, Weighted, ConsistentHash}
}

// New builds the strategy registered under name. virtualNodes only applies
// to consistent hashing.
func New(name string, virtualNodes int) (Strategy, error) {
	switch name {
	case Priority, "":
		return NewPriorityStrategy(), nil
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	case Random:
		return NewRandomStrategy(), nil
	case LeastConn:
		return NewLeastConnStrategy(), nil
	case LeastResponse:
		return NewLeastResponseStrategy(), nil
	case Weighted:
		return NewWeightedRoundRobinStrategy(), nil
	case ConsistentHash:
		return NewConsistentHashStrategy(virtualNodes), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

type priorityStrategy struct{}

func (priorityStrategy) Order(_ string, providers []*provider.Tracked) []*provider.Tracked {
	return slices.Clone(providers)
}

func NewPriorityStrategy() Strategy {
	return priorityStrategy{}
}

// rotate returns providers starting at index start, wrapping around.
func rotate(providers []*provider.Tracked, start int) []*provider.Tracked {
	out := make([]*provider.Tracked, 0, len(providers))
	out = append(out, providers[start:]...)
	return append(out, providers[:start]...)
}
