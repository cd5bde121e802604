package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/model"
)

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	if !sendLatest(ch, []byte("a")) || !sendLatest(ch, []byte("b")) {
		t.Fatalf("unexpected drop while queue had room")
	}
	if sendLatest(ch, []byte("c")) {
		t.Fatalf("expected drop on full queue")
	}
	if got := string(<-ch) + string(<-ch); got != "bc" {
		t.Fatalf("queue=%q want bc", got)
	}
}

func TestSubscriber_Filters(t *testing.T) {
	s := &subscriber{playerID: "alice", types: map[string]bool{game.EventStealAttempt: true, game.EventBlocksSpawned: true}}
	cases := []struct {
		ev   game.Event
		want bool
	}{
		{game.Event{Type: game.EventBlocksSpawned}, true},
		{game.Event{Type: game.EventStealAttempt, PlayerID: "bob", TargetID: "alice"}, true},
		{game.Event{Type: game.EventStealAttempt, PlayerID: "bob", TargetID: "carol"}, false},
		{game.Event{Type: game.EventBlockClaimed, PlayerID: "alice"}, false},
	}
	for _, c := range cases {
		if got := s.wants(c.ev); got != c.want {
			t.Fatalf("wants(%+v)=%v want %v", c.ev, got, c.want)
		}
	}
}

func TestHub_DeliversEventsOverWebsocket(t *testing.T) {
	hub := NewHub(nil, func() protocol.WelcomeMsg {
		return protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, EventTypes: protocol.EventTypes()}
	})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?types=BLOCKS_SPAWNED"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome=%+v err=%v", welcome, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_ = hub.Notify(game.Event{Seq: 1, Type: game.EventBlockSold, PlayerID: "x"})
	blk := model.BlockInstance{ID: "b9", Type: "HASH", Rarity: catalogs.Rare, Value: 80, Stealable: true}
	_ = hub.Notify(game.Event{Seq: 2, Type: game.EventBlocksSpawned, Blocks: []model.BlockInstance{blk}})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg protocol.EventMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Seq != 2 || msg.Event != game.EventBlocksSpawned || len(msg.Blocks) != 1 || msg.Blocks[0].ID != "b9" {
		t.Fatalf("msg=%+v", msg)
	}
}
