package players

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"blockwars.gg/internal/sim/model"
)

func starter(id string) *model.Player {
	return &model.Player{ID: id, Coins: 100, Level: 1, AttackPower: 10, DefenseStrength: 10}
}

func TestUpdate_FailedCallbackLeavesNoTrace(t *testing.T) {
	s := NewStore(starter)
	if _, err := s.UpdateOrCreate("p1", func(p *model.Player) error { return nil }); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	got, err := s.Update("p1", func(p *model.Player) error {
		p.Coins = 999
		p.OwnedBlocks = append(p.OwnedBlocks, model.BlockInstance{ID: "b1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if got.Coins != 100 || len(got.OwnedBlocks) != 0 {
		t.Fatalf("returned=%+v", got)
	}
	p, _ := s.Get("p1")
	if p.Coins != 100 || len(p.OwnedBlocks) != 0 || p.Version != 1 {
		t.Fatalf("stored=%+v", p)
	}
	if _, ok := s.Owner("b1"); ok {
		t.Fatalf("ownership leaked from failed update")
	}
}

func TestUpdate_UnknownPlayer(t *testing.T) {
	s := NewStore(starter)
	if _, err := s.Update("ghost", func(p *model.Player) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if s.Exists("ghost") {
		t.Fatalf("Update must not create players")
	}
}

func TestUpdate_ConcurrentIncrementsAreSerialized(t *testing.T) {
	s := NewStore(starter)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateOrCreate("p1", func(p *model.Player) error {
				p.Coins++
				return nil
			})
		}()
	}
	wg.Wait()
	p, _ := s.Get("p1")
	if p.Coins != 164 || p.Version != 64 {
		t.Fatalf("coins=%d version=%d", p.Coins, p.Version)
	}
}

func TestUpdatePair_MovesOwnership(t *testing.T) {
	s := NewStore(starter)
	s.UpdateOrCreate("a", func(p *model.Player) error { return nil })
	s.UpdateOrCreate("b", func(p *model.Player) error {
		p.OwnedBlocks = append(p.OwnedBlocks, model.BlockInstance{ID: "x", OwnerID: "b", Stealable: true})
		return nil
	})
	if owner, _ := s.Owner("x"); owner != "b" {
		t.Fatalf("owner=%q", owner)
	}
	_, _, err := s.UpdatePair("b", "a", func(target, attacker *model.Player) error {
		i := target.BlockIndex("x")
		blk := target.RemoveBlock(i)
		blk.OwnerID = attacker.ID
		attacker.OwnedBlocks = append(attacker.OwnedBlocks, blk)
		return nil
	})
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if owner, _ := s.Owner("x"); owner != "a" {
		t.Fatalf("owner after move=%q", owner)
	}
	if _, _, err := s.UpdatePair("a", "a", func(a, b *model.Player) error { return nil }); !errors.Is(err, ErrSameID) {
		t.Fatalf("same id err=%v", err)
	}
}

func TestUpdatePair_OppositeOrdersDoNotDeadlock(t *testing.T) {
	s := NewStore(starter)
	s.UpdateOrCreate("a", func(p *model.Player) error { return nil })
	s.UpdateOrCreate("b", func(p *model.Player) error { return nil })
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.UpdatePair("a", "b", func(x, y *model.Player) error { x.Coins++; return nil })
		}()
		go func() {
			defer wg.Done()
			s.UpdatePair("b", "a", func(x, y *model.Player) error { y.Coins++; return nil })
		}()
	}
	wg.Wait()
	a, _ := s.Get("a")
	if a.Coins != 300 {
		t.Fatalf("a.coins=%d", a.Coins)
	}
}

func TestLeaderboardAndExportImport(t *testing.T) {
	s := NewStore(starter)
	for i, v := range []int64{10, 300, 50} {
		id := fmt.Sprintf("p%d", i)
		v := v
		s.UpdateOrCreate(id, func(p *model.Player) error {
			p.OwnedBlocks = append(p.OwnedBlocks, model.BlockInstance{ID: "b-" + id, Value: v, OwnerID: id})
			return nil
		})
	}
	top := s.Leaderboard(2)
	if len(top) != 2 || top[0].PlayerID != "p1" || top[1].PlayerID != "p2" {
		t.Fatalf("top=%+v", top)
	}

	r := NewStore(starter)
	r.Import(s.Export())
	if r.Len() != 3 {
		t.Fatalf("len=%d", r.Len())
	}
	if owner, _ := r.Owner("b-p2"); owner != "p2" {
		t.Fatalf("owner index not rebuilt: %q", owner)
	}
}
