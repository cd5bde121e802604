package game

import (
	"sort"

	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/arena"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/model"
)

// ExportSnapshot captures pool, tombstones and players as one consistent cut.
func (e *Engine) ExportSnapshot() snapshot.SnapshotV1 {
	e.barrier.Lock()
	pool := e.pool.Export()
	ps := e.players.Export()
	seq := e.seq.Load()
	e.barrier.Unlock()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			EngineID: e.cfg.ID,
			Seq:      seq,
			SavedAt:  e.clock().UnixMilli(),
		},
		Seed:          e.cfg.Seed,
		CatalogDigest: e.cats.Blocks.Digest,
		TuningVersion: e.tune.ProtocolVersion,
		NextSpawnAt:   pool.NextSpawnAt,
		Counters:      e.stats.export(),
	}
	for _, b := range pool.Blocks {
		snap.Pool = append(snap.Pool, blockV1(b))
	}
	ids := make([]string, 0, len(pool.Tombstones))
	for id := range pool.Tombstones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := pool.Tombstones[id]
		snap.Tombstones = append(snap.Tombstones, snapshot.TombstoneV1{BlockID: id, Winner: t.Winner, At: t.At, Sold: t.Sold})
	}
	for _, p := range ps {
		pv := snapshot.PlayerV1{
			ID:               p.ID,
			Coins:            p.Coins,
			MoneyMilli:       p.MoneyMilli,
			Level:            p.Level,
			Experience:       p.Experience,
			AttackPower:      p.AttackPower,
			DefenseStrength:  p.DefenseStrength,
			LastSettledAt:    p.LastAccrualSettledAt,
			AccrualRemainder: p.AccrualRemainder,
			CreatedAt:        p.CreatedAt,
			Version:          p.Version,
		}
		for _, b := range p.OwnedBlocks {
			pv.OwnedBlocks = append(pv.OwnedBlocks, blockV1(b))
		}
		snap.Players = append(snap.Players, pv)
	}
	return snap
}

// ImportSnapshot replaces the engine state. Call it before serving traffic.
func (e *Engine) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.CatalogDigest != "" && s.CatalogDigest != e.cats.Blocks.Digest {
		e.logger.Printf("snapshot catalog digest %s differs from loaded %s; keeping stored instance stats", s.CatalogDigest, e.cats.Blocks.Digest)
	}
	st := arena.State{
		Tombstones:  make(map[string]arena.Tombstone, len(s.Tombstones)),
		NextSpawnAt: s.NextSpawnAt,
	}
	for _, b := range s.Pool {
		st.Blocks = append(st.Blocks, blockFromV1(b))
	}
	for _, t := range s.Tombstones {
		st.Tombstones[t.BlockID] = arena.Tombstone{Winner: t.Winner, At: t.At, Sold: t.Sold}
	}
	ps := make([]model.Player, 0, len(s.Players))
	for _, pv := range s.Players {
		p := model.Player{
			ID:                   pv.ID,
			Coins:                pv.Coins,
			MoneyMilli:           pv.MoneyMilli,
			Level:                pv.Level,
			Experience:           pv.Experience,
			AttackPower:          pv.AttackPower,
			DefenseStrength:      pv.DefenseStrength,
			LastAccrualSettledAt: pv.LastSettledAt,
			AccrualRemainder:     pv.AccrualRemainder,
			CreatedAt:            pv.CreatedAt,
			Version:              pv.Version,
		}
		for _, b := range pv.OwnedBlocks {
			p.OwnedBlocks = append(p.OwnedBlocks, blockFromV1(b))
		}
		ps = append(ps, p)
	}

	e.barrier.Lock()
	defer e.barrier.Unlock()
	e.pool.Import(st)
	e.players.Import(ps)
	e.seq.Store(s.Header.Seq)
	e.stats.restore(s.Counters)
	return nil
}

func blockV1(b model.BlockInstance) snapshot.BlockV1 {
	return snapshot.BlockV1{
		ID:        b.ID,
		Type:      b.Type,
		Rarity:    string(b.Rarity),
		Value:     b.Value,
		Power:     b.Power,
		Defense:   b.Defense,
		SpawnedAt: b.SpawnedAt,
		OwnerID:   b.OwnerID,
		Stealable: b.Stealable,
		Chain:     b.Chain,
	}
}

func blockFromV1(b snapshot.BlockV1) model.BlockInstance {
	return model.BlockInstance{
		ID:        b.ID,
		Type:      b.Type,
		Rarity:    catalogs.Rarity(b.Rarity),
		Value:     b.Value,
		Power:     b.Power,
		Defense:   b.Defense,
		SpawnedAt: b.SpawnedAt,
		OwnerID:   b.OwnerID,
		Stealable: b.Stealable,
		Chain:     b.Chain,
	}
}
