package game

import (
	"errors"
	"fmt"

	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

// errOwnerMoved means the block changed hands between the index lookup and the lock.
var errOwnerMoved = errors.New("owner moved")

const stealRetries = 3

// StealResult is the outcome of one attempt. The cost is burned either way.
type StealResult struct {
	Attacker *model.Player
	Success  bool
	Cost     int64
}

// Steal attacks another player's block. Checks run in a fixed order: the block
// must be owned, not by the attacker, stealable; the attacker must have room and
// enough coins for the cost.
func (e *Engine) Steal(attackerID, blockID string) (StealResult, error) {
	if attackerID == "" || blockID == "" {
		return StealResult{}, fmt.Errorf("%w: playerId and blockId are required", ErrBadRequest)
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()

	for i := 0; i < stealRetries; i++ {
		res, err := e.stealOnce(attackerID, blockID)
		if errors.Is(err, errOwnerMoved) {
			continue
		}
		return res, err
	}
	return StealResult{}, fmt.Errorf("%w: block %s", ErrNotFound, blockID)
}

func (e *Engine) stealOnce(attackerID, blockID string) (StealResult, error) {
	defenderID, ok := e.players.Owner(blockID)
	if !ok {
		return StealResult{}, fmt.Errorf("%w: block %s is not owned", ErrNotFound, blockID)
	}
	if defenderID == attackerID {
		return StealResult{}, ErrSelfTarget
	}
	if !e.players.Exists(attackerID) {
		return StealResult{}, fmt.Errorf("%w: player %s", ErrNotFound, attackerID)
	}

	now := e.clock()
	var (
		res  StealResult
		blk  model.BlockInstance
		up   economy.LevelUp
		gain int64
	)
	attacker, _, err := e.players.UpdatePair(attackerID, defenderID, func(a, d *model.Player) error {
		i := d.BlockIndex(blockID)
		if i < 0 {
			return errOwnerMoved
		}
		blk = d.OwnedBlocks[i]
		if !blk.Stealable {
			return ErrNotStealable
		}
		e.settle(a, now)
		e.settle(d, now)
		if len(a.OwnedBlocks) >= e.rules.CollectionCap() {
			return ErrCollectionFull
		}
		cost := e.rules.StealCost(blk.Value)
		if a.Coins < cost {
			return fmt.Errorf("%w: steal costs %d coins", ErrInsufficientFunds, cost)
		}
		a.Coins -= cost
		res.Cost = cost
		res.Success = e.rand.Intn(1000) < e.rules.StealSuccessPermille()
		if !res.Success {
			return nil
		}
		d.RemoveBlock(i)
		blk.OwnerID = a.ID
		a.OwnedBlocks = append(a.OwnedBlocks, blk)
		a.Coins += blk.Value
		gain = blk.Value
		up = e.award(a, e.rules.StealXP())
		return nil
	})
	if errors.Is(err, players.ErrNotFound) {
		// The defender is known to exist, so this can only be a race with a restore.
		return StealResult{}, fmt.Errorf("%w: player %s", ErrNotFound, attackerID)
	}
	if err != nil {
		return StealResult{}, err
	}

	res.Attacker = attacker
	e.stats.stealAttempts.Add(1)
	if res.Success {
		e.stats.stealSuccesses.Add(1)
	}
	e.emit(Event{
		Type:     EventStealAttempt,
		At:       now,
		PlayerID: attackerID,
		TargetID: defenderID,
		Block:    &blk,
		Coins:    gain - res.Cost,
		Cost:     res.Cost,
		Success:  res.Success,
	})
	e.emitLevelUp(attackerID, now, up)
	return res, nil
}
