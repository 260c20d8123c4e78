package billing

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultDescription is used when a ruleset has no descriptions.
const DefaultDescription = "Služby"

// Picker chooses a service description from a ruleset's pool.
type Picker interface {
	Pick(pool []string) string
}

// RandomPicker picks uniformly at random. Safe for concurrent use.
type RandomPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPicker returns a picker seeded with seed, or with the current
// time when seed is zero.
func NewRandomPicker(seed int64) *RandomPicker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPicker) Pick(pool []string) string {
	if len(pool) == 0 {
		return DefaultDescription
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return pool[p.rng.Intn(len(pool))]
}

// FirstPicker always picks the first description. Used where output must
// be stable.
type FirstPicker struct{}

func (FirstPicker) Pick(pool []string) string {
	if len(pool) == 0 {
		return DefaultDescription
	}
	return pool[0]
}
