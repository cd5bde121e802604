package game

import (
	"time"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
)

const (
	EventBlocksSpawned  = protocol.EventBlocksSpawned
	EventBlockClaimed   = protocol.EventBlockClaimed
	EventBlockPurchased = protocol.EventBlockPurchased
	EventStealAttempt   = protocol.EventStealAttempt
	EventBlockSold      = protocol.EventBlockSold
	EventLevelUp        = protocol.EventLevelUp
)

// Event is a committed state change, published after the commit.
type Event struct {
	Seq      uint64
	Type     string
	At       time.Time
	PlayerID string
	// TargetID is the defender of a steal attempt.
	TargetID string
	Block    *model.BlockInstance
	Blocks   []model.BlockInstance
	// Coins is the coin delta for the acting player (claim value, sale proceeds, steal net).
	Coins     int64
	Cost      int64
	Success   bool
	FromLevel int
	ToLevel   int
	// PriceMilli is the money paid for a purchase.
	PriceMilli int64
}

// Notifier receives engine events. Delivery is best-effort: errors are logged,
// never surfaced to the player whose operation produced the event.
// Implementations must not block.
type Notifier interface {
	Notify(ev Event) error
}

// MultiNotifier fans events out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ev Event) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// emit numbers and publishes ev. Callers hold the barrier shared so a snapshot
// never contains a commit whose seq it does not cover.
func (e *Engine) emit(ev Event) {
	ev.Seq = e.seq.Add(1)
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ev); err != nil {
		e.logger.Printf("notify %s seq=%d: %v", ev.Type, ev.Seq, err)
	}
}

func (e *Engine) emitLevelUp(playerID string, at time.Time, up economy.LevelUp) {
	if up.Gained() <= 0 {
		return
	}
	e.emit(Event{Type: EventLevelUp, At: at, PlayerID: playerID, FromLevel: up.From, ToLevel: up.To})
}

// Wire renders the event for the notification stream.
func (ev Event) Wire() protocol.EventMsg {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             ev.Seq,
		Event:           ev.Type,
		At:              ev.At,
		PlayerID:        ev.PlayerID,
		TargetID:        ev.TargetID,
		Coins:           ev.Coins,
		Cost:            ev.Cost,
		FromLevel:       ev.FromLevel,
		ToLevel:         ev.ToLevel,
		Price:           economy.MilliToMoney(ev.PriceMilli),
	}
	if ev.Block != nil {
		b := BlockWire(*ev.Block)
		msg.Block = &b
	}
	if len(ev.Blocks) > 0 {
		msg.Blocks = BlocksWire(ev.Blocks)
	}
	if ev.Type == EventStealAttempt {
		ok := ev.Success
		msg.Success = &ok
	}
	return msg
}

func BlockWire(b model.BlockInstance) protocol.Block {
	return protocol.Block{
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

func BlocksWire(bs []model.BlockInstance) []protocol.Block {
	out := make([]protocol.Block, 0, len(bs))
	for _, b := range bs {
		out = append(out, BlockWire(b))
	}
	return out
}

func PlayerWire(p *model.Player) protocol.Player {
	return protocol.Player{
		ID:                   p.ID,
		Coins:                p.Coins,
		Money:                economy.MilliToMoney(p.MoneyMilli),
		Level:                p.Level,
		Experience:           p.Experience,
		AttackPower:          p.AttackPower,
		DefenseStrength:      p.DefenseStrength,
		OwnedBlocks:          BlocksWire(p.OwnedBlocks),
		LastAccrualSettledAt: p.LastAccrualSettledAt,
		Version:              p.Version,
	}
}

// BlockFromWire is the inverse of BlockWire; unknown rarities are kept verbatim.
func BlockFromWire(b protocol.Block) model.BlockInstance {
	r, ok := catalogs.ParseRarity(b.Rarity)
	if !ok {
		r = catalogs.Rarity(b.Rarity)
	}
	return model.BlockInstance{
		ID:        b.ID,
		Type:      b.Type,
		Rarity:    r,
		Value:     b.Value,
		Power:     b.Power,
		Defense:   b.Defense,
		SpawnedAt: b.SpawnedAt,
		OwnerID:   b.OwnerID,
		Stealable: b.Stealable,
		Chain:     b.Chain,
	}
}
