package strategy

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
)

type consistentHashStrategy struct {
	virtualNodes int
	mutex        sync.RWMutex
	rings        map[string]*ringSnapshot
}

type ringSnapshot struct {
	positions []uint32
	owners    map[uint32]*provider.Tracked
	size      int
}

func buildRing(providers []*provider.Tracked, vnodes int) *ringSnapshot {
	rs := &ringSnapshot{
		positions: make([]uint32, 0, len(providers)*vnodes),
		owners:    make(map[uint32]*provider.Tracked),
		size:      len(providers),
	}

	for _, p := range providers {
		for i := 0; i < vnodes; i++ {
			key := p.ID() + "#" + strconv.Itoa(i)
			hash := crc32.ChecksumIEEE([]byte(key))

			if _, taken := rs.owners[hash]; taken {
				continue
			}
			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = p
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

// walk returns distinct owners clockwise from hash.
func (r *ringSnapshot) walk(hash uint32) []*provider.Tracked {
	if r == nil || len(r.positions) == 0 {
		return nil
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	out := make([]*provider.Tracked, 0, r.size)
	seen := make(map[*provider.Tracked]struct{}, r.size)
	for i := 0; i < len(r.positions) && len(out) < r.size; i++ {
		owner := r.owners[r.positions[(idx+i)%len(r.positions)]]
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}
		out = append(out, owner)
	}
	return out
}

// Order puts the symbol's ring owner first, so repeated fetches of one
// symbol land on the same provider while it stays healthy.
func (s *consistentHashStrategy) Order(symbol string, providers []*provider.Tracked) []*provider.Tracked {
	if len(providers) == 0 {
		return nil
	}

	rs := s.ring(providers)
	return rs.walk(crc32.ChecksumIEEE([]byte(symbol)))
}

func (s *consistentHashStrategy) ring(providers []*provider.Tracked) *ringSnapshot {
	set := signature(providers)

	s.mutex.RLock()
	rs, ok := s.rings[set]
	s.mutex.RUnlock()
	if ok {
		return rs
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if rs, ok := s.rings[set]; ok {
		return rs
	}
	rs = buildRing(providers, s.virtualNodes)
	s.rings[set] = rs
	return rs
}

func NewConsistentHashStrategy(virtualNodes int) Strategy {
	if virtualNodes <= 0 {
		virtualNodes = 100
	}

	return &consistentHashStrategy{
		virtualNodes: virtualNodes,
		rings:        make(map[string]*ringSnapshot),
	}
}
