package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/rng"
	"blockwars.gg/internal/sim/tuning"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	eng *game.Engine
	clk *clock
	srv *httptest.Server
}

func newFixture(t *testing.T, tune tuning.Tuning, vals ...int) *fixture {
	t.Helper()
	cats, err := catalogs.FromArchetypes([]catalogs.BlockArchetype{
		{Type: "GENESIS", DisplayName: "Genesis", BaseValue: 50, BasePower: 12, BaseDefense: 10},
		{Type: "HASH", DisplayName: "Hash", BaseValue: 40, BasePower: 8, BaseDefense: 8},
	})
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	clk := &clock{t: t0}
	var n atomic.Int64
	opts := []game.Option{
		game.WithClock(clk.Now),
		game.WithIDGen(func() string { return fmt.Sprintf("blk-%d", n.Add(1)) }),
	}
	if len(vals) > 0 {
		opts = append(opts, game.WithRand(rng.NewScript(vals...)))
	}
	eng, err := game.New(game.Config{ID: "api-test", Seed: 1}, tune, cats, opts...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	mux := http.NewServeMux()
	NewServer(eng, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{eng: eng, clk: clk, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

var (
	schemaMu sync.Mutex
	schemas  = map[string]*jsonschema.Schema{}
)

func validate(t *testing.T, name string, raw []byte) {
	t.Helper()
	schemaMu.Lock()
	s, ok := schemas[name]
	if !ok {
		var err error
		s, err = jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", name))
		if err != nil {
			schemaMu.Unlock()
			t.Fatalf("compile %s: %v", name, err)
		}
		schemas[name] = s
	}
	schemaMu.Unlock()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("%s: %v\n%s", name, err, raw)
	}
}

func decodePlayer(t *testing.T, raw []byte) protocol.PlayerResponse {
	t.Helper()
	validate(t, "player_response.schema.json", raw)
	var pr protocol.PlayerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return pr
}

func expectError(t *testing.T, status int, raw []byte, wantStatus int, wantCode string) {
	t.Helper()
	validate(t, "error.schema.json", raw)
	var er protocol.ErrorResponse
	_ = json.Unmarshal(raw, &er)
	if status != wantStatus || er.Error.Code != wantCode {
		t.Fatalf("status=%d code=%s want %d %s (%s)", status, er.Error.Code, wantStatus, wantCode, raw)
	}
}

func TestAPI_ProfileSpawnClaimState(t *testing.T) {
	f := newFixture(t, tuning.Defaults())

	status, raw := f.do(t, http.MethodPost, "/game/player-profile?playerId=alice", nil)
	if status != http.StatusOK {
		t.Fatalf("profile status=%d %s", status, raw)
	}
	if pr := decodePlayer(t, raw); pr.Player.Coins != 100 || pr.Player.Level != 1 {
		t.Fatalf("starter player=%+v", pr.Player)
	}

	status, raw = f.do(t, http.MethodPost, "/game/spawn", nil)
	if status != http.StatusOK {
		t.Fatalf("spawn status=%d", status)
	}
	var sp protocol.SpawnResponse
	_ = json.Unmarshal(raw, &sp)
	if len(sp.Spawned) == 0 || len(sp.Pool) != len(sp.Spawned) {
		t.Fatalf("spawn=%+v", sp)
	}
	// Same window: nothing new.
	_, raw = f.do(t, http.MethodPost, "/game/spawn", nil)
	var again protocol.SpawnResponse
	_ = json.Unmarshal(raw, &again)
	if len(again.Spawned) != 0 || len(again.Pool) != len(sp.Pool) {
		t.Fatalf("double spawn: %+v", again)
	}

	blk := sp.Pool[0]
	status, raw = f.do(t, http.MethodPost, "/game/claim", protocol.ClaimRequest{BlockID: blk.ID, PlayerID: "alice"})
	if status != http.StatusOK {
		t.Fatalf("claim status=%d %s", status, raw)
	}
	pr := decodePlayer(t, raw)
	if pr.Player.Coins != 100+blk.Value || len(pr.Player.OwnedBlocks) != 1 {
		t.Fatalf("after claim=%+v", pr.Player)
	}

	status, raw = f.do(t, http.MethodPost, "/game/claim", protocol.ClaimRequest{BlockID: blk.ID, PlayerID: "alice"})
	expectError(t, status, raw, http.StatusConflict, protocol.ErrAlreadyClaimed)

	status, raw = f.do(t, http.MethodGet, "/game/state?playerId=alice", nil)
	if status != http.StatusOK {
		t.Fatalf("state status=%d", status)
	}
	validate(t, "state.schema.json", raw)
	var st protocol.StateResponse
	_ = json.Unmarshal(raw, &st)
	if st.Player == nil || st.Player.ID != "alice" || len(st.Pool) != len(sp.Pool)-1 {
		t.Fatalf("state=%+v", st)
	}
	if len(st.Leaderboard) != 1 || st.Leaderboard[0].PlayerID != "alice" {
		t.Fatalf("leaderboard=%+v", st.Leaderboard)
	}
}

func TestAPI_PurchaseStealSellSettle(t *testing.T) {
	// The scripted source answers 0 to every draw, so the steal roll always succeeds.
	f := newFixture(t, tuning.Defaults(), 0)

	f.do(t, http.MethodPost, "/game/player-profile?playerId=alice", nil)
	status, raw := f.do(t, http.MethodPost, "/game/purchase", protocol.PurchaseRequest{PlayerID: "alice", Rarity: "rare", Chain: "base"})
	expectError(t, status, raw, http.StatusPaymentRequired, protocol.ErrInsufficientFunds)

	status, raw = f.do(t, http.MethodPost, "/game/purchase", protocol.PurchaseRequest{PlayerID: "alice", Rarity: "common", Chain: "base"})
	expectError(t, status, raw, http.StatusBadRequest, protocol.ErrBadRequest)

	blk := model.BlockInstance{ID: "arena-1", Type: "HASH", Rarity: catalogs.Epic, Value: 160, Power: 32, Defense: 32, SpawnedAt: t0, Stealable: true}
	if !f.eng.Seed(blk) {
		t.Fatalf("seed failed")
	}
	f.do(t, http.MethodPost, "/game/claim", protocol.ClaimRequest{BlockID: "arena-1", PlayerID: "alice"})

	status, raw = f.do(t, http.MethodPost, "/game/steal", protocol.StealRequest{PlayerID: "alice", BlockID: "arena-1"})
	expectError(t, status, raw, http.StatusUnprocessableEntity, protocol.ErrSelfTarget)

	f.do(t, http.MethodPost, "/game/player-profile?playerId=bob", nil)
	status, raw = f.do(t, http.MethodPost, "/game/steal", protocol.StealRequest{PlayerID: "bob", BlockID: "arena-1"})
	if status != http.StatusOK {
		t.Fatalf("steal status=%d %s", status, raw)
	}
	pr := decodePlayer(t, raw)
	if pr.Stolen == nil || !*pr.Stolen {
		t.Fatalf("expected successful steal: %s", raw)
	}
	// 100 starter - 16 cost + 160 value.
	if pr.Player.Coins != 244 || len(pr.Player.OwnedBlocks) != 1 {
		t.Fatalf("attacker=%+v", pr.Player)
	}

	f.clk.Advance(time.Minute)
	status, raw = f.do(t, http.MethodPost, "/game/settle?playerId=bob", nil)
	if status != http.StatusOK {
		t.Fatalf("settle status=%d", status)
	}
	if pr := decodePlayer(t, raw); pr.Player.Money != 15 {
		t.Fatalf("money after one epic minute=%v", pr.Player.Money)
	}

	status, raw = f.do(t, http.MethodPost, "/game/sell", protocol.SellRequest{PlayerID: "bob", BlockID: "arena-1"})
	if status != http.StatusOK {
		t.Fatalf("sell status=%d %s", status, raw)
	}
	// floor(160 * 0.7) = 112.
	if pr := decodePlayer(t, raw); pr.Player.Coins != 244+112 || len(pr.Player.OwnedBlocks) != 0 {
		t.Fatalf("after sell=%+v", pr.Player)
	}

	status, raw = f.do(t, http.MethodPost, "/game/settle?playerId=nobody", nil)
	expectError(t, status, raw, http.StatusNotFound, protocol.ErrNotFound)
}

func TestAPI_RequestValidation(t *testing.T) {
	f := newFixture(t, tuning.Defaults())

	status, raw := f.do(t, http.MethodGet, "/game/claim", nil)
	expectError(t, status, raw, http.StatusMethodNotAllowed, protocol.ErrBadRequest)

	status, raw = f.do(t, http.MethodPost, "/game/claim", nil)
	expectError(t, status, raw, http.StatusBadRequest, protocol.ErrBadRequest)

	status, raw = f.do(t, http.MethodPost, "/game/claim", map[string]string{"blockId": "x"})
	expectError(t, status, raw, http.StatusBadRequest, protocol.ErrBadRequest)

	status, raw = f.do(t, http.MethodPost, "/game/player-profile", nil)
	expectError(t, status, raw, http.StatusBadRequest, protocol.ErrBadRequest)

	status, raw = f.do(t, http.MethodPost, "/game/claim", protocol.ClaimRequest{BlockID: "never", PlayerID: "ghost"})
	expectError(t, status, raw, http.StatusNotFound, protocol.ErrNotFound)
}

func TestAPI_RateLimitPerPlayer(t *testing.T) {
	tune := tuning.Defaults()
	tune.RateLimits.ActionsPerSecond = 1
	tune.RateLimits.Burst = 2
	f := newFixture(t, tune)

	for i := 0; i < 2; i++ {
		if status, raw := f.do(t, http.MethodPost, "/game/player-profile?playerId=alice", nil); status != http.StatusOK {
			t.Fatalf("call %d status=%d %s", i, status, raw)
		}
	}
	status, raw := f.do(t, http.MethodPost, "/game/player-profile?playerId=alice", nil)
	expectError(t, status, raw, http.StatusTooManyRequests, protocol.ErrRateLimited)

	// Other players have their own bucket.
	if status, _ := f.do(t, http.MethodPost, "/game/player-profile?playerId=bob", nil); status != http.StatusOK {
		t.Fatalf("bob limited: %d", status)
	}

	f.clk.Advance(time.Second)
	if status, _ := f.do(t, http.MethodPost, "/game/player-profile?playerId=alice", nil); status != http.StatusOK {
		t.Fatalf("alice still limited after refill: %d", status)
	}
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	now := t0
	l := NewLimiter(1, 1, func() time.Time { return now })
	for i := 0; i < limiterSweepLen; i++ {
		l.Allow(fmt.Sprintf("p%d", i))
	}
	now = now.Add(limiterIdle + time.Second)
	l.Allow("fresh")
	if l.Len() != 1 {
		t.Fatalf("len=%d want 1", l.Len())
	}
	if got := l.RetryAfter(); got != time.Second {
		t.Fatalf("retry after=%v", got)
	}
}
