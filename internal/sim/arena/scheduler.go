package arena

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/rng"
)

// Minter builds fresh block instances with globally unique ids.
type Minter struct {
	Catalog catalogs.BlockCatalog
	Rules   economy.Rules
	Rand    rng.Source
	// NewID defaults to a random UUID.
	NewID func() string
}

func (m Minter) id() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

// RandomTypeFor draws uniformly among the archetypes that come in rarity r.
func (m Minter) RandomTypeFor(r catalogs.Rarity) (string, bool) {
	types := m.Catalog.TypesFor(r)
	if len(types) == 0 {
		return "", false
	}
	return types[m.Rand.Intn(len(types))], true
}

// RandomSpawn draws an archetype uniformly from the spawnable ones, then a
// tier uniformly from the free tiers that archetype allows.
func (m Minter) RandomSpawn() (string, catalogs.Rarity, bool) {
	types := m.Catalog.SpawnTypes
	if len(types) == 0 {
		return "", "", false
	}
	a, ok := m.Catalog.Get(types[m.Rand.Intn(len(types))])
	if !ok {
		return "", "", false
	}
	tiers := a.SpawnRarities()
	return a.Type, tiers[m.Rand.Intn(len(tiers))], true
}

func (m Minter) Mint(typ string, rarity catalogs.Rarity, now time.Time) (model.BlockInstance, error) {
	a, ok := m.Catalog.Get(typ)
	if !ok {
		return model.BlockInstance{}, fmt.Errorf("unknown block type %q", typ)
	}
	if !a.Allows(rarity) {
		return model.BlockInstance{}, fmt.Errorf("%s does not come in rarity %q", a.Type, rarity)
	}
	value, power, defense := m.Rules.Stats(a, rarity)
	return model.BlockInstance{
		ID:        m.id(),
		Type:      a.Type,
		Rarity:    rarity,
		Value:     value,
		Power:     power,
		Defense:   defense,
		SpawnedAt: now,
		Stealable: true,
	}, nil
}

// Scheduler refills the pool once per spawn window.
type Scheduler struct {
	pool     *Pool
	mint     Minter
	interval time.Duration
	minBatch int
	maxBatch int

	mu sync.Mutex
}

func NewScheduler(pool *Pool, mint Minter, interval time.Duration, minBatch, maxBatch int) *Scheduler {
	if minBatch <= 0 {
		minBatch = 1
	}
	if maxBatch < minBatch {
		maxBatch = minBatch
	}
	return &Scheduler{pool: pool, mint: mint, interval: interval, minBatch: minBatch, maxBatch: maxBatch}
}

// Start sets the first spawn time unless one was restored from a snapshot.
func (s *Scheduler) Start(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool.NextSpawnAt().IsZero() {
		s.pool.SetNextSpawnAt(now)
	}
}

// Tick spawns one batch if the current window is due and returns what was added.
// Missed windows are not backfilled: the next window is always now+interval.
func (s *Scheduler) Tick(now time.Time) []model.BlockInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.pool.NextSpawnAt()
	if !next.IsZero() && now.Before(next) {
		return nil
	}
	s.pool.SetNextSpawnAt(now.Add(s.interval))
	return s.spawnLocked(now)
}

// Force spawns a batch immediately without touching the window.
func (s *Scheduler) Force(now time.Time) []model.BlockInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(now)
}

func (s *Scheduler) spawnLocked(now time.Time) []model.BlockInstance {
	free := s.pool.MaxSize() - s.pool.Len()
	if free <= 0 || len(s.mint.Catalog.SpawnTypes) == 0 {
		return nil
	}
	n := s.minBatch + s.mint.Rand.Intn(s.maxBatch-s.minBatch+1)
	if n > free {
		n = free
	}
	out := make([]model.BlockInstance, 0, n)
	for i := 0; i < n; i++ {
		typ, rarity, ok := s.mint.RandomSpawn()
		if !ok {
			break
		}
		b, err := s.mint.Mint(typ, rarity, now)
		if err != nil {
			continue
		}
		if s.pool.Put(b) {
			out = append(out, b)
		}
	}
	return out
}
