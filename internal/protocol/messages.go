package protocol

import "time"

type Block struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Rarity    string    `json:"rarity"`
	Value     int64     `json:"value"`
	Power     int       `json:"power"`
	Defense   int       `json:"defense"`
	SpawnedAt time.Time `json:"spawnedAt"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Stealable bool      `json:"stealable"`
	Chain     string    `json:"chain,omitempty"`
}

type Player struct {
	ID                   string    `json:"id"`
	Coins                int64     `json:"coins"`
	Money                float64   `json:"money"`
	Level                int       `json:"level"`
	Experience           int64     `json:"experience"`
	AttackPower          int       `json:"attackPower"`
	DefenseStrength      int       `json:"defenseStrength"`
	OwnedBlocks          []Block   `json:"ownedBlocks"`
	LastAccrualSettledAt time.Time `json:"lastAccrualSettledAt"`
	Version              uint64    `json:"version"`
}

type LeaderboardEntry struct {
	PlayerID        string `json:"playerId"`
	Level           int    `json:"level"`
	Coins           int64  `json:"coins"`
	CollectionValue int64  `json:"collectionValue"`
	Blocks          int    `json:"blocks"`
}

// GET game/state
type StateResponse struct {
	ServerTime  time.Time          `json:"serverTime"`
	NextSpawnAt time.Time          `json:"nextSpawnAt"`
	Pool        []Block            `json:"pool"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Player      *Player            `json:"player,omitempty"`
}

// POST game/spawn
type SpawnResponse struct {
	Spawned     []Block   `json:"spawned"`
	Pool        []Block   `json:"pool"`
	NextSpawnAt time.Time `json:"nextSpawnAt"`
}

// Returned by every state-changing call that succeeds.
type PlayerResponse struct {
	Player Player `json:"player"`
	// Stolen is set only by game/steal.
	Stolen *bool `json:"stolen,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ClaimRequest struct {
	BlockID  string `json:"blockId"`
	PlayerID string `json:"playerId"`
}

type PurchaseRequest struct {
	PlayerID string `json:"playerId"`
	Rarity   string `json:"rarity"`
	Chain    string `json:"chain"`
	Type     string `json:"type,omitempty"`
}

type StealRequest struct {
	PlayerID string `json:"playerId"`
	BlockID  string `json:"blockId"`
}

type SellRequest struct {
	PlayerID string `json:"playerId"`
	BlockID  string `json:"blockId"`
}

// WELCOME (server -> subscriber) is the first frame on the notification stream.
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ServerTime      time.Time `json:"serverTime"`
	CatalogDigest   string    `json:"catalogDigest"`
	EventTypes      []string  `json:"eventTypes"`
}

// EVENT (server -> subscriber)
type EventMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Seq             uint64    `json:"seq"`
	Event           string    `json:"event"`
	At              time.Time `json:"at"`
	PlayerID        string    `json:"playerId,omitempty"`
	TargetID        string    `json:"targetId,omitempty"`
	Block           *Block    `json:"block,omitempty"`
	Blocks          []Block   `json:"blocks,omitempty"`
	Coins           int64     `json:"coins,omitempty"`
	Cost            int64     `json:"cost,omitempty"`
	Success         *bool     `json:"success,omitempty"`
	FromLevel       int       `json:"fromLevel,omitempty"`
	ToLevel         int       `json:"toLevel,omitempty"`
	Price           float64   `json:"price,omitempty"`
}
