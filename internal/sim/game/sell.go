package game

import (
	"errors"
	"fmt"

	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

// Sell destroys an owned block for coins. The id is retired for good.
func (e *Engine) Sell(playerID, blockID string) (*model.Player, error) {
	if playerID == "" || blockID == "" {
		return nil, fmt.Errorf("%w: playerId and blockId are required", ErrBadRequest)
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()

	now := e.clock()
	var (
		sold     model.BlockInstance
		proceeds int64
	)
	p, err := e.players.Update(playerID, func(p *model.Player) error {
		i := p.BlockIndex(blockID)
		if i < 0 {
			return fmt.Errorf("%w: block %s is not in the collection", ErrNotFound, blockID)
		}
		// Income up to now still counts the block being sold.
		e.settle(p, now)
		sold = p.RemoveBlock(i)
		proceeds = e.rules.SellPrice(sold.Value, sold.Rarity)
		p.Coins += proceeds
		return nil
	})
	if errors.Is(err, players.ErrNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if err != nil {
		return nil, err
	}
	e.pool.Retire(blockID, now)

	e.stats.sells.Add(1)
	e.emit(Event{Type: EventBlockSold, At: now, PlayerID: playerID, Block: &sold, Coins: proceeds})
	return p, nil
}
