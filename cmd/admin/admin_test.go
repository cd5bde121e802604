package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "blockwars.gg/internal/persistence/log"
	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/game"
)

func sampleSnapshot(at time.Time) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, EngineID: "arena_1", Seq: 12345, SavedAt: at.UnixMilli()},
		NextSpawnAt: at.Add(2 * time.Minute),
		Pool:        []snapshot.BlockV1{{ID: "p1", Value: 40}},
		Players: []snapshot.PlayerV1{
			{ID: "bob", Coins: 1500, MoneyMilli: 2500, Level: 2, OwnedBlocks: []snapshot.BlockV1{{ID: "b1", Value: 400}, {ID: "b2", Value: 80}}},
			{ID: "alice", Coins: 1500, Level: 1},
			{ID: "carol", Coins: 10, Level: 1},
		},
		Counters: snapshot.CountersV1{Claims: 4, StealAttempts: 3, StealSuccesses: 1},
	}
}

func TestSummarize_OrdersByCoinsThenID(t *testing.T) {
	s := summarize(sampleSnapshot(time.Now()), 2)
	if s.Players != 3 || s.Pool != 1 || len(s.Top) != 2 {
		t.Fatalf("summary=%+v", s)
	}
	if s.Top[0].ID != "alice" || s.Top[1].ID != "bob" || s.Top[1].Value != 480 || s.Top[1].Blocks != 2 {
		t.Fatalf("top=%+v", s.Top)
	}
	out := renderSummary(s)
	for _, want := range []string{"seq=12,345", "steals=1/3", "coins=1,500", "money=2.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeEngine_UsesLatestSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "arena_1")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := describeEngine(dir, now); !strings.Contains(got, "no snapshots") {
		t.Fatalf("empty dir: %q", got)
	}
	for _, seq := range []uint64{5, 12345} {
		snap := sampleSnapshot(now.Add(-time.Hour))
		snap.Header.Seq = seq
		if err := snapshot.WriteSnapshot(filepath.Join(dir, "snapshots", snapshot.FileName(seq)), snap); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got := describeEngine(dir, now)
	if !strings.HasPrefix(got, "arena_1\tseq=12,345\t") || !strings.HasSuffix(got, "1 hour ago") {
		t.Fatalf("describe=%q", got)
	}
}

func TestTailEvents_FiltersAndLimits(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewEventLogger(dir)
	at := time.Now().UTC()
	for i := 1; i <= 10; i++ {
		ev := game.Event{Seq: uint64(i), Type: game.EventBlockClaimed, At: at, PlayerID: "alice"}
		if i%2 == 0 {
			ev = game.Event{Seq: uint64(i), Type: game.EventStealAttempt, At: at, PlayerID: "bob", TargetID: "alice", Cost: 4}
		}
		if err := l.Notify(ev); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	steals, err := tailEvents(dir, "", game.EventStealAttempt, 0)
	if err != nil || len(steals) != 5 {
		t.Fatalf("steals=%d err=%v", len(steals), err)
	}
	last, err := tailEvents(dir, "alice", "", 3)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(last) != 3 || last[0].Seq != 8 || last[2].Seq != 10 {
		t.Fatalf("tail=%+v", last)
	}
	bob, _ := tailEvents(dir, "bob", game.EventBlockClaimed, 10)
	if len(bob) != 0 {
		t.Fatalf("bob claims=%+v", bob)
	}
}

func TestAdminCall_ExitCodes(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.URL.Path == "/admin/v1/spawn" {
			_, _ = rw.Write([]byte(`{"ok":true,"spawned":[],"pool_size":3}`))
			return
		}
		http.Error(rw, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	if code := adminCall(http.MethodPost, srv.URL+"/", "/admin/v1/spawn", time.Second); code != 0 {
		t.Fatalf("spawn exit=%d", code)
	}
	if gotMethod != http.MethodPost || gotPath != "/admin/v1/spawn" {
		t.Fatalf("request=%s %s", gotMethod, gotPath)
	}
	if code := adminCall(http.MethodGet, srv.URL, "/admin/v1/state", time.Second); code != 1 {
		t.Fatalf("forbidden exit=%d", code)
	}
}
