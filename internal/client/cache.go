package client

import (
	"context"
	"sync"
	"time"

	"blockwars.gg/internal/protocol"
)

// Cache mirrors one player's view: their record, the arena pool and the next
// spawn time. Local changes are optimistic; whatever the server returns wins.
type Cache struct {
	api      *Client
	playerID string

	mu          sync.Mutex
	player      protocol.Player
	pool        []protocol.Block
	nextSpawnAt time.Time
	syncedAt    time.Time
	// dirty is set while an optimistic change has not been confirmed.
	dirty     bool
	conflicts uint64
}

func NewCache(api *Client, playerID string) *Cache {
	return &Cache{api: api, playerID: playerID}
}

func (k *Cache) PlayerID() string { return k.playerID }

func (k *Cache) Player() protocol.Player {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.player
	p.OwnedBlocks = append([]protocol.Block(nil), k.player.OwnedBlocks...)
	return p
}

func (k *Cache) Pool() []protocol.Block {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]protocol.Block(nil), k.pool...)
}

func (k *Cache) NextSpawnAt() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nextSpawnAt
}

// SyncedAt is the server time of the last Refresh.
func (k *Cache) SyncedAt() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.syncedAt
}

// Dirty reports whether the mirror holds unconfirmed local changes.
func (k *Cache) Dirty() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dirty
}

// Conflicts counts refreshes that discarded local state which disagreed with the server.
func (k *Cache) Conflicts() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.conflicts
}

// Refresh replaces the mirror with the server's state.
func (k *Cache) Refresh(ctx context.Context) error {
	st, err := k.api.State(ctx, k.playerID)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pool = st.Pool
	k.nextSpawnAt = st.NextSpawnAt
	k.syncedAt = st.ServerTime
	if st.Player != nil {
		k.adoptLocked(*st.Player)
	}
	return nil
}

// Adopt installs an authoritative player record.
func (k *Cache) Adopt(p protocol.Player) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.adoptLocked(p)
}

func (k *Cache) adoptLocked(p protocol.Player) {
	if k.dirty && !samePlayer(k.player, p) {
		k.conflicts++
	}
	k.player = p
	k.dirty = false
	for _, b := range p.OwnedBlocks {
		k.dropPoolLocked(b.ID)
	}
}

// ApplyClaim moves a pool block into the local player as the server would.
// It reports false when the block is not in the mirrored pool.
func (k *Cache) ApplyClaim(blockID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.dropPoolLocked(blockID)
	if !ok {
		return false
	}
	b.OwnerID = k.playerID
	k.player.OwnedBlocks = append(k.player.OwnedBlocks, b)
	k.player.Coins += b.Value
	k.dirty = true
	return true
}

// ApplySell removes an owned block locally and credits proceeds.
func (k *Cache) ApplySell(blockID string, proceeds int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, b := range k.player.OwnedBlocks {
		if b.ID != blockID {
			continue
		}
		k.player.OwnedBlocks = append(k.player.OwnedBlocks[:i:i], k.player.OwnedBlocks[i+1:]...)
		k.player.Coins += proceeds
		k.dirty = true
		return true
	}
	return false
}

// Claim applies the claim optimistically, then confirms it with the server.
// On any failure the mirror is refreshed so the server state wins.
// If the refresh fails too, the local player is rolled back and the block is
// dropped from the mirrored pool.
func (k *Cache) Claim(ctx context.Context, blockID string) (protocol.Player, error) {
	k.mu.Lock()
	prev, prevDirty := k.player, k.dirty
	prev.OwnedBlocks = append([]protocol.Block(nil), k.player.OwnedBlocks...)
	k.mu.Unlock()

	k.ApplyClaim(blockID)
	p, err := k.api.Claim(ctx, k.playerID, blockID)
	if err != nil {
		if rerr := k.Refresh(ctx); rerr != nil {
			k.mu.Lock()
			k.player, k.dirty = prev, prevDirty
			k.dropPoolLocked(blockID)
			k.mu.Unlock()
		}
		return protocol.Player{}, err
	}
	k.Adopt(p)
	return p, nil
}

// Sell confirms a sale with the server; proceeds is the locally predicted credit.
func (k *Cache) Sell(ctx context.Context, blockID string, proceeds int64) (protocol.Player, error) {
	k.ApplySell(blockID, proceeds)
	p, err := k.api.Sell(ctx, k.playerID, blockID)
	if err != nil {
		_ = k.Refresh(ctx)
		return protocol.Player{}, err
	}
	k.Adopt(p)
	return p, nil
}

// ApplyEvent folds a notification into the mirror. Events about the local
// player only mark it dirty; its record is fetched on the next Refresh.
func (k *Cache) ApplyEvent(ev protocol.EventMsg) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch ev.Event {
	case protocol.EventBlocksSpawned:
		for _, b := range ev.Blocks {
			if _, dup := k.poolIndexLocked(b.ID); !dup {
				k.pool = append(k.pool, b)
			}
		}
	case protocol.EventBlockClaimed:
		if ev.Block != nil {
			k.dropPoolLocked(ev.Block.ID)
		}
	}
	if ev.PlayerID == k.playerID || ev.TargetID == k.playerID {
		if ev.Event != protocol.EventBlocksSpawned {
			k.dirty = true
		}
	}
}

func (k *Cache) poolIndexLocked(id string) (int, bool) {
	for i, b := range k.pool {
		if b.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (k *Cache) dropPoolLocked(id string) (protocol.Block, bool) {
	i, ok := k.poolIndexLocked(id)
	if !ok {
		return protocol.Block{}, false
	}
	b := k.pool[i]
	k.pool = append(k.pool[:i:i], k.pool[i+1:]...)
	return b, true
}

// samePlayer compares the fields an optimistic change predicts.
func samePlayer(a, b protocol.Player) bool {
	if a.Coins != b.Coins || len(a.OwnedBlocks) != len(b.OwnedBlocks) {
		return false
	}
	for i := range a.OwnedBlocks {
		if a.OwnedBlocks[i].ID != b.OwnedBlocks[i].ID {
			return false
		}
	}
	return true
}
