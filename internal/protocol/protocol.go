package protocol

import "encoding/json"

const Version = "1.0"

// Notification stream message types.
const (
	TypeWelcome = "WELCOME"
	TypeEvent   = "EVENT"
)

// Engine event types carried in EventMsg.Event.
const (
	EventBlocksSpawned  = "BLOCKS_SPAWNED"
	EventBlockClaimed   = "BLOCK_CLAIMED"
	EventBlockPurchased = "BLOCK_PURCHASED"
	EventStealAttempt   = "STEAL_ATTEMPT"
	EventBlockSold      = "BLOCK_SOLD"
	EventLevelUp        = "LEVEL_UP"
)

var eventTypes = []string{
	EventBlocksSpawned,
	EventBlockClaimed,
	EventBlockPurchased,
	EventStealAttempt,
	EventBlockSold,
	EventLevelUp,
}

func EventTypes() []string { return append([]string(nil), eventTypes...) }

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
