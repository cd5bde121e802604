package game

import (
	"errors"
	"fmt"
	"strings"

	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

func (e *Engine) chainAllowed(chain string) bool {
	if chain == "" {
		return false
	}
	if e.chains == nil {
		return true
	}
	return e.chains[chain]
}

// Purchase buys a new block of the given rarity with money. Purchased blocks skip
// the pool and can never be stolen. An empty typ draws an archetype at random.
func (e *Engine) Purchase(playerID, rarity, chain, typ string) (*model.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: missing playerId", ErrBadRequest)
	}
	r, ok := catalogs.ParseRarity(rarity)
	if !ok {
		return nil, fmt.Errorf("%w: unknown rarity %q", ErrBadRequest, rarity)
	}
	price, ok := e.rules.PurchasePrice(r)
	if !ok {
		return nil, fmt.Errorf("%w: %s blocks cannot be purchased", ErrBadRequest, r)
	}
	chain = strings.ToLower(strings.TrimSpace(chain))
	if !e.chainAllowed(chain) {
		return nil, fmt.Errorf("%w: unsupported chain %q", ErrBadRequest, chain)
	}
	if typ == "" {
		if typ, ok = e.mint.RandomTypeFor(r); !ok {
			return nil, fmt.Errorf("%w: no block type comes in %s", ErrBadRequest, r)
		}
	} else if a, ok := e.cats.Blocks.Get(typ); !ok {
		return nil, fmt.Errorf("%w: block type %s", ErrNotFound, typ)
	} else if !a.Allows(r) {
		return nil, fmt.Errorf("%w: %s does not come in %s", ErrBadRequest, a.Type, r)
	}

	e.barrier.RLock()
	defer e.barrier.RUnlock()

	now := e.clock()
	blk, err := e.mint.Mint(typ, r, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	priceMilli := economy.MoneyToMilli(price)

	p, err := e.players.Update(playerID, func(p *model.Player) error {
		e.settle(p, now)
		if p.MoneyMilli < priceMilli {
			return fmt.Errorf("%w: need %d, have %.3f", ErrInsufficientFunds, price, economy.MilliToMoney(p.MoneyMilli))
		}
		if len(p.OwnedBlocks) >= e.rules.CollectionCap() {
			return ErrCollectionFull
		}
		p.MoneyMilli -= priceMilli
		blk.OwnerID = p.ID
		blk.Stealable = false
		blk.Chain = chain
		p.OwnedBlocks = append(p.OwnedBlocks, blk)
		return nil
	})
	if errors.Is(err, players.ErrNotFound) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if err != nil {
		return nil, err
	}

	e.stats.purchases.Add(1)
	e.emit(Event{Type: EventBlockPurchased, At: now, PlayerID: playerID, Block: &blk, PriceMilli: priceMilli})
	return p, nil
}
