package game

import (
	"sync/atomic"

	"blockwars.gg/internal/persistence/snapshot"
)

type counters struct {
	claims         atomic.Uint64
	purchases      atomic.Uint64
	stealAttempts  atomic.Uint64
	stealSuccesses atomic.Uint64
	sells          atomic.Uint64
	spawned        atomic.Uint64
}

func (c *counters) export() snapshot.CountersV1 {
	return snapshot.CountersV1{
		Claims:         c.claims.Load(),
		Purchases:      c.purchases.Load(),
		StealAttempts:  c.stealAttempts.Load(),
		StealSuccesses: c.stealSuccesses.Load(),
		Sells:          c.sells.Load(),
		Spawned:        c.spawned.Load(),
	}
}

func (c *counters) restore(v snapshot.CountersV1) {
	c.claims.Store(v.Claims)
	c.purchases.Store(v.Purchases)
	c.stealAttempts.Store(v.StealAttempts)
	c.stealSuccesses.Store(v.StealSuccesses)
	c.sells.Store(v.Sells)
	c.spawned.Store(v.Spawned)
}

// Metrics is a point-in-time view for the /metrics endpoint.
type Metrics struct {
	Seq            uint64
	Players        int
	PoolSize       int
	Claims         uint64
	Purchases      uint64
	StealAttempts  uint64
	StealSuccesses uint64
	Sells          uint64
	Spawned        uint64
}

func (e *Engine) Metrics() Metrics {
	c := e.stats.export()
	return Metrics{
		Seq:            e.seq.Load(),
		Players:        e.players.Len(),
		PoolSize:       e.pool.Len(),
		Claims:         c.Claims,
		Purchases:      c.Purchases,
		StealAttempts:  c.StealAttempts,
		StealSuccesses: c.StealSuccesses,
		Sells:          c.Sells,
		Spawned:        c.Spawned,
	}
}
