package arena

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/rng"
	"blockwars.gg/internal/sim/tuning"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testMinter(t *testing.T, src rng.Source) Minter {
	t.Helper()
	cats, err := catalogs.FromArchetypes([]catalogs.BlockArchetype{
		{Type: "GENESIS", BaseValue: 50, BasePower: 12, BaseDefense: 10},
		{Type: "HASH", BaseValue: 40, BasePower: 8, BaseDefense: 8},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var seq atomic.Int64
	return Minter{
		Catalog: cats.Blocks,
		Rules:   economy.NewRules(tuning.Defaults()),
		Rand:    src,
		NewID:   func() string { return fmt.Sprintf("b%d", seq.Add(1)) },
	}
}

func TestPool_ConcurrentTakeHasOneWinner(t *testing.T) {
	p := NewPool(4)
	if !p.Put(model.BlockInstance{ID: "x", Type: "HASH", Rarity: catalogs.Rare, Value: 80}) {
		t.Fatalf("put failed")
	}

	var wins, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := p.Take("x", fmt.Sprintf("p%d", i), t0)
			switch {
			case err == nil:
				if b.OwnerID == "" {
					t.Errorf("winner copy has no owner")
				}
				wins.Add(1)
			case errors.Is(err, ErrAlreadyClaimed):
				lost.Add(1)
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 || lost.Load() != 31 {
		t.Fatalf("wins=%d lost=%d", wins.Load(), lost.Load())
	}
	if p.Len() != 0 {
		t.Fatalf("pool len=%d", p.Len())
	}
}

func TestPool_UnknownVsClaimed(t *testing.T) {
	p := NewPool(4)
	if _, err := p.Take("nope", "p1", t0); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("err=%v want unknown", err)
	}
	p.Put(model.BlockInstance{ID: "a"})
	if _, err := p.Take("a", "p1", t0); err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := p.Take("a", "p2", t0); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("err=%v want already claimed", err)
	}
	if n := p.PruneTombstones(t0.Add(time.Second)); n != 1 {
		t.Fatalf("pruned=%d", n)
	}
	if _, err := p.Take("a", "p2", t0); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("after prune err=%v", err)
	}
}

func TestPool_RetiredIDIsNeverReadded(t *testing.T) {
	p := NewPool(4)
	p.Retire("sold-1", t0)
	if p.Put(model.BlockInstance{ID: "sold-1"}) {
		t.Fatalf("retired id re-entered the pool")
	}
	if p.Put(model.BlockInstance{ID: "owned", OwnerID: "p1"}) {
		t.Fatalf("owned instance entered the pool")
	}
}

func TestPool_ExportImport(t *testing.T) {
	p := NewPool(4)
	p.Put(model.BlockInstance{ID: "a"})
	p.Put(model.BlockInstance{ID: "b"})
	p.Take("a", "p1", t0)
	p.SetNextSpawnAt(t0.Add(time.Minute))

	q := NewPool(4)
	q.Import(p.Export())
	if got := q.List(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("list=%+v", got)
	}
	if !q.NextSpawnAt().Equal(t0.Add(time.Minute)) {
		t.Fatalf("next=%v", q.NextSpawnAt())
	}
	if _, err := q.Take("a", "p2", t0); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("tombstone lost: %v", err)
	}
}

func TestScheduler_TickIsIdempotentWithinWindow(t *testing.T) {
	p := NewPool(24)
	s := NewScheduler(p, testMinter(t, rng.New(1)), 2*time.Minute, 1, 3)
	s.Start(t0)

	first := s.Tick(t0)
	if len(first) < 1 || len(first) > 3 {
		t.Fatalf("batch=%d", len(first))
	}
	if again := s.Tick(t0.Add(30 * time.Second)); len(again) != 0 {
		t.Fatalf("second tick in window spawned %d", len(again))
	}
	if !p.NextSpawnAt().Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("next=%v", p.NextSpawnAt())
	}
	if next := s.Tick(t0.Add(2 * time.Minute)); len(next) == 0 {
		t.Fatalf("due window did not spawn")
	}
}

func TestScheduler_NoBackfillAfterGap(t *testing.T) {
	p := NewPool(24)
	s := NewScheduler(p, testMinter(t, rng.NewScript(2)), 2*time.Minute, 1, 3)
	s.Start(t0)
	late := t0.Add(time.Hour)
	got := s.Tick(late)
	if len(got) != 3 {
		t.Fatalf("batch=%d want 3", len(got))
	}
	if !p.NextSpawnAt().Equal(late.Add(2 * time.Minute)) {
		t.Fatalf("next=%v", p.NextSpawnAt())
	}
}

func TestScheduler_RespectsPoolCapAndNeverSpawnsSecret(t *testing.T) {
	p := NewPool(5)
	s := NewScheduler(p, testMinter(t, rng.New(7)), time.Second, 1, 3)
	now := t0
	for i := 0; i < 50; i++ {
		for _, b := range s.Tick(now) {
			if b.Rarity == catalogs.Secret {
				t.Fatalf("secret spawned: %+v", b)
			}
			if b.Owned() || !b.Stealable {
				t.Fatalf("bad spawn %+v", b)
			}
		}
		if p.Len() > 5 {
			t.Fatalf("pool len=%d", p.Len())
		}
		now = now.Add(time.Second)
	}
	if p.Len() != 5 {
		t.Fatalf("pool never filled: %d", p.Len())
	}
}

func TestMinter_StatsFollowRarity(t *testing.T) {
	m := testMinter(t, rng.New(1))
	b, err := m.Mint("genesis", catalogs.Legendary, t0)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if b.Type != "GENESIS" || b.Value != 400 || b.Power != 96 || b.Defense != 80 {
		t.Fatalf("instance=%+v", b)
	}
	if _, err := m.Mint("NOPE", catalogs.Rare, t0); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestScheduler_SpawnsOnlyTiersTheArchetypeAllows(t *testing.T) {
	cats, err := catalogs.FromArchetypes([]catalogs.BlockArchetype{
		{Type: "RELIC", BaseValue: 90, Rarities: []catalogs.Rarity{catalogs.Epic, catalogs.Legendary}},
		{Type: "VAULT", BaseValue: 120, Rarities: []catalogs.Rarity{catalogs.Secret}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	m := Minter{Catalog: cats.Blocks, Rules: economy.NewRules(tuning.Defaults()), Rand: rng.New(3)}
	p := NewPool(200)
	s := NewScheduler(p, m, time.Second, 3, 3)
	now := t0
	for i := 0; i < 40; i++ {
		s.Tick(now)
		now = now.Add(time.Second)
	}
	if p.Len() == 0 {
		t.Fatalf("nothing spawned")
	}
	for _, b := range p.List() {
		if b.Type != "RELIC" {
			t.Fatalf("purchase-only archetype spawned: %+v", b)
		}
		if b.Rarity != catalogs.Epic && b.Rarity != catalogs.Legendary {
			t.Fatalf("disallowed tier spawned: %+v", b)
		}
	}
	if _, err := m.Mint("RELIC", catalogs.Common, t0); err == nil {
		t.Fatalf("expected mint of a disallowed tier to fail")
	}
}

func TestScheduler_NoSpawnableArchetypes(t *testing.T) {
	cats, err := catalogs.FromArchetypes([]catalogs.BlockArchetype{
		{Type: "VAULT", BaseValue: 120, Rarities: []catalogs.Rarity{catalogs.Secret}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	m := Minter{Catalog: cats.Blocks, Rules: economy.NewRules(tuning.Defaults()), Rand: rng.New(3)}
	s := NewScheduler(NewPool(8), m, time.Second, 1, 3)
	if got := s.Tick(t0); len(got) != 0 {
		t.Fatalf("spawned %d blocks from a purchase-only catalog", len(got))
	}
}
