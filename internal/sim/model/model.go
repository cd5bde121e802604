// Package model holds the engine's record types shared by the pool, the player
// store, snapshots and the wire layer.
package model

import (
	"time"

	"blockwars.gg/internal/sim/catalogs"
)

type BlockInstance struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Rarity    catalogs.Rarity `json:"rarity"`
	Value     int64           `json:"value"`
	Power     int             `json:"power"`
	Defense   int             `json:"defense"`
	SpawnedAt time.Time       `json:"spawned_at"`
	OwnerID   string          `json:"owner_id,omitempty"`
	Stealable bool            `json:"stealable"`
	Chain     string          `json:"chain,omitempty"`
}

func (b BlockInstance) Owned() bool { return b.OwnerID != "" }

type Player struct {
	ID              string          `json:"id"`
	Coins           int64           `json:"coins"`
	MoneyMilli      int64           `json:"money_milli"`
	Level           int             `json:"level"`
	Experience      int64           `json:"experience"`
	AttackPower     int             `json:"attack_power"`
	DefenseStrength int             `json:"defense_strength"`
	OwnedBlocks     []BlockInstance `json:"owned_blocks"`

	LastAccrualSettledAt time.Time `json:"last_accrual_settled_at"`
	// AccrualRemainder carries income below one milli-unit between settles.
	AccrualRemainder int64     `json:"accrual_remainder,omitempty"`
	CreatedAt        time.Time `json:"created_at"`

	// Version counts committed mutations. Clients use it to tell stale mirrors apart.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy; callers may mutate it freely.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	cp.OwnedBlocks = append([]BlockInstance(nil), p.OwnedBlocks...)
	return &cp
}

func (p *Player) BlockIndex(id string) int {
	for i := range p.OwnedBlocks {
		if p.OwnedBlocks[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveBlock drops the block at index i preserving collection order.
func (p *Player) RemoveBlock(i int) BlockInstance {
	b := p.OwnedBlocks[i]
	p.OwnedBlocks = append(p.OwnedBlocks[:i:i], p.OwnedBlocks[i+1:]...)
	return b
}
