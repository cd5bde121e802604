package game

import (
	"errors"
	"fmt"
	"time"

	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

// errUnchanged aborts a read-only commit so reads that credit nothing do not bump the version.
var errUnchanged = errors.New("unchanged")

// settle credits income earned since the last settlement, in place.
// It never moves the settlement timestamp backwards.
func (e *Engine) settle(p *model.Player, now time.Time) int64 {
	if p.LastAccrualSettledAt.IsZero() {
		p.LastAccrualSettledAt = now
		return 0
	}
	if !now.After(p.LastAccrualSettledAt) {
		return 0
	}
	var rate int64
	for _, b := range p.OwnedBlocks {
		rate += e.rules.IncomePerMinute(b.Rarity)
	}
	milli, consumed, rem := economy.Accrue(rate, now.Sub(p.LastAccrualSettledAt), p.AccrualRemainder)
	if consumed <= 0 {
		return 0
	}
	p.MoneyMilli += milli
	p.AccrualRemainder = rem
	p.LastAccrualSettledAt = p.LastAccrualSettledAt.Add(consumed)
	return milli
}

// settleRead is the commit callback for reads: settle, and skip the commit when nothing moved.
func (e *Engine) settleRead(now time.Time) func(p *model.Player) error {
	return func(p *model.Player) error {
		before := p.LastAccrualSettledAt
		e.settle(p, now)
		if p.LastAccrualSettledAt.Equal(before) {
			return errUnchanged
		}
		return nil
	}
}

// Settle brings a player's money up to date.
func (e *Engine) Settle(playerID string) (*model.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: missing playerId", ErrBadRequest)
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	p, err := e.players.Update(playerID, e.settleRead(e.clock()))
	if errors.Is(err, players.ErrNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}
	return p, nil
}

// Profile returns the settled player, creating it with starter values on first contact.
func (e *Engine) Profile(playerID string) (*model.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: missing playerId", ErrBadRequest)
	}
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	p, err := e.players.UpdateOrCreate(playerID, e.settleRead(e.clock()))
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}
	return p, nil
}
