package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blockwars.gg/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip encodes v the way the server does and decodes it into a generic value.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	blk := protocol.Block{ID: "b1", Type: "GENESIS", Rarity: "legendary", Value: 400, Power: 96, Defense: 80, SpawnedAt: now, Stealable: true}
	owned := blk
	owned.OwnerID = "alice"
	player := protocol.Player{
		ID: "alice", Coins: 500, Money: 12.5, Level: 2, Experience: 130,
		AttackPower: 15, DefenseStrength: 20, OwnedBlocks: []protocol.Block{owned},
		LastAccrualSettledAt: now, Version: 7,
	}
	stolen := true

	cases := []struct {
		schema string
		v      any
	}{
		{"player_response.schema.json", protocol.PlayerResponse{Player: player}},
		{"player_response.schema.json", protocol.PlayerResponse{Player: player, Stolen: &stolen}},
		{"state.schema.json", protocol.StateResponse{
			ServerTime: now, NextSpawnAt: now.Add(2 * time.Minute),
			Pool:        []protocol.Block{blk},
			Leaderboard: []protocol.LeaderboardEntry{{PlayerID: "alice", Level: 2, Coins: 500, CollectionValue: 400, Blocks: 1}},
			Player:      &player,
		}},
		{"error.schema.json", protocol.ErrorResponse{Error: protocol.ErrorBody{Code: protocol.ErrAlreadyClaimed, Message: "block b1"}}},
		{"welcome.schema.json", protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, ServerTime: now,
			CatalogDigest: "deadbeef", EventTypes: protocol.EventTypes(),
		}},
		{"event.schema.json", protocol.EventMsg{
			Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Seq: 1,
			Event: protocol.EventBlocksSpawned, At: now, Blocks: []protocol.Block{blk},
		}},
		{"event.schema.json", protocol.EventMsg{
			Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Seq: 2,
			Event: protocol.EventStealAttempt, At: now, PlayerID: "bob", TargetID: "alice",
			Block: &owned, Cost: 40, Coins: 360, Success: &stolen,
		}},
		{"event.schema.json", protocol.EventMsg{
			Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Seq: 3,
			Event: protocol.EventLevelUp, At: now, PlayerID: "alice", FromLevel: 1, ToLevel: 2,
		}},
	}
	for _, c := range cases {
		if err := compile(t, c.schema).Validate(roundTrip(t, c.v)); err != nil {
			t.Fatalf("%s: %v", c.schema, err)
		}
	}
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	player := compile(t, "player_response.schema.json")
	var neg any
	_ = json.Unmarshal([]byte(`{"player":{"id":"a","coins":-1,"money":0,"level":1,"experience":0,
	  "attackPower":10,"defenseStrength":10,"ownedBlocks":[],"lastAccrualSettledAt":"x","version":1}}`), &neg)
	if err := player.Validate(neg); err == nil {
		t.Fatalf("negative coins accepted")
	}

	event := compile(t, "event.schema.json")
	var steal any
	_ = json.Unmarshal([]byte(`{"type":"EVENT","protocol_version":"1.0","seq":1,"event":"STEAL_ATTEMPT","at":"x","playerId":"b"}`), &steal)
	if err := event.Validate(steal); err == nil {
		t.Fatalf("steal event without outcome accepted")
	}

	errSchema := compile(t, "error.schema.json")
	var unknown any
	_ = json.Unmarshal([]byte(`{"error":{"code":"E_NOPE","message":""}}`), &unknown)
	if err := errSchema.Validate(unknown); err == nil {
		t.Fatalf("unknown code accepted")
	}
}
