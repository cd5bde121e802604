package game

import (
	"errors"
	"fmt"

	"blockwars.gg/internal/sim/arena"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

// award adds XP and applies every level crossed.
func (e *Engine) award(p *model.Player, xp int64) economy.LevelUp {
	newXP, up := e.rules.AwardXP(p.Experience, xp)
	p.Experience = newXP
	p.Level = up.To
	p.AttackPower += up.AttackBonus
	p.DefenseStrength += up.DefenseBonus
	return up
}

// Claim moves a pool block into the player's collection. Of several concurrent
// claims on one block exactly one succeeds; the rest get ErrAlreadyClaimed.
func (e *Engine) Claim(playerID, blockID string) (*model.Player, error) {
	if playerID == "" || blockID == "" {
		return nil, fmt.Errorf("%w: playerId and blockId are required", ErrBadRequest)
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()

	now := e.clock()
	var (
		taken model.BlockInstance
		up    economy.LevelUp
	)
	p, err := e.players.Update(playerID, func(p *model.Player) error {
		e.settle(p, now)
		if len(p.OwnedBlocks) >= e.rules.CollectionCap() {
			return ErrCollectionFull
		}
		// Nothing below may fail once the block has left the pool.
		b, err := e.pool.Take(blockID, p.ID, now)
		switch {
		case errors.Is(err, arena.ErrAlreadyClaimed):
			return fmt.Errorf("%w: block %s", ErrAlreadyClaimed, blockID)
		case errors.Is(err, arena.ErrUnknownBlock):
			return fmt.Errorf("%w: block %s", ErrNotFound, blockID)
		case err != nil:
			return err
		}
		p.OwnedBlocks = append(p.OwnedBlocks, b)
		p.Coins += b.Value
		up = e.award(p, e.rules.ClaimXP(b.Rarity))
		taken = b
		return nil
	})
	if errors.Is(err, players.ErrNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if err != nil {
		return nil, err
	}

	e.stats.claims.Add(1)
	e.emit(Event{Type: EventBlockClaimed, At: now, PlayerID: playerID, Block: &taken, Coins: taken.Value})
	e.emitLevelUp(playerID, now, up)
	return p, nil
}
