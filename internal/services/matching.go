package services

import (
	"math/rand/v2"
	"sync"

	"github.com/watchcoin/backend/internal/models"
)

// Matcher picks which eligible video a viewer gets next. Candidates arrive
// oldest first; each is weighted 1 + boost so boosted videos are served more
// often without starving the rest.
type Matcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMatcher returns a Matcher using rng, or a randomly seeded source when nil.
func NewMatcher(rng *rand.Rand) *Matcher {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Matcher{rng: rng}
}

func candidateWeight(v *models.Video) int {
	if v.Boost < 0 {
		return 1
	}
	return 1 + v.Boost
}

// Pick returns the index of the chosen candidate, or -1 when there are none.
func (m *Matcher) Pick(candidates []models.Video) int {
	if len(candidates) == 0 {
		return -1
	}
	total := 0
	for i := range candidates {
		total += candidateWeight(&candidates[i])
	}

	m.mu.Lock()
	r := m.rng.IntN(total)
	m.mu.Unlock()

	for i := range candidates {
		r -= candidateWeight(&candidates[i])
		if r < 0 {
			return i
		}
	}
	return len(candidates) - 1
}
