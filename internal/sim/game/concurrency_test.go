package game

import (
	"fmt"
	"sync"
	"testing"

	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/rng"
)

func TestConcurrentClaimStealSell_OnePlayerNearCap(t *testing.T) {
	for round := 0; round < 20; round++ {
		e, _ := newTestEngine(t, WithRand(rng.New(int64(round))))
		rivals := []string{"r1", "r2", "r3"}

		edit(t, e, "hero", func(p *model.Player) {
			p.Coins = 10000
			for i := 0; i < 11; i++ {
				p.OwnedBlocks = append(p.OwnedBlocks, model.BlockInstance{
					ID: fmt.Sprintf("hero-%d", i), Type: "HASH", Rarity: catalogs.Common, Value: 40, Stealable: true, OwnerID: "hero",
				})
			}
		})
		for _, id := range rivals {
			owner := id
			edit(t, e, owner, func(p *model.Player) {
				p.Coins = 10000
				for i := 0; i < 3; i++ {
					p.OwnedBlocks = append(p.OwnedBlocks, model.BlockInstance{
						ID: fmt.Sprintf("%s-%d", owner, i), Type: "HASH", Rarity: catalogs.Rare, Value: 80, Stealable: true, OwnerID: owner,
					})
				}
			})
		}
		for i := 0; i < 6; i++ {
			e.Seed(poolBlock(fmt.Sprintf("loose-%d", i), catalogs.Epic, 160))
		}

		var wg sync.WaitGroup
		run := func(op func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := op(); Code(err) == protocol.ErrInternal {
					t.Errorf("round %d: unexpected error: %v", round, err)
				}
			}()
		}
		for i := 0; i < 6; i++ {
			blockID := fmt.Sprintf("loose-%d", i)
			run(func() error { _, err := e.Claim("hero", blockID); return err })
			rival := rivals[i%len(rivals)]
			run(func() error { _, err := e.Claim(rival, blockID); return err })
		}
		for i := 0; i < 4; i++ {
			i := i
			blockID := fmt.Sprintf("hero-%d", i)
			run(func() error { _, err := e.Sell("hero", blockID); return err })
			rival := rivals[i%len(rivals)]
			run(func() error { _, err := e.Steal(rival, fmt.Sprintf("hero-%d", 10-i)); return err })
		}
		for _, rival := range rivals {
			for i := 0; i < 3; i++ {
				blockID := fmt.Sprintf("%s-%d", rival, i)
				run(func() error { _, err := e.Steal("hero", blockID); return err })
			}
		}
		wg.Wait()

		inPool := map[string]bool{}
		for _, b := range e.Pool() {
			inPool[b.ID] = true
		}
		owners := map[string]string{}
		for _, p := range e.Players() {
			if len(p.OwnedBlocks) > 12 {
				t.Fatalf("round %d: %s owns %d blocks", round, p.ID, len(p.OwnedBlocks))
			}
			if p.Coins < 0 || p.MoneyMilli < 0 {
				t.Fatalf("round %d: negative balance %+v", round, p)
			}
			for _, b := range p.OwnedBlocks {
				if prev, dup := owners[b.ID]; dup {
					t.Fatalf("round %d: block %s owned by %s and %s", round, b.ID, prev, p.ID)
				}
				owners[b.ID] = p.ID
				if inPool[b.ID] {
					t.Fatalf("round %d: owned block %s still in the pool", round, b.ID)
				}
				if idx, _ := e.players.Owner(b.ID); idx != p.ID {
					t.Fatalf("round %d: index owner of %s=%q want %s", round, b.ID, idx, p.ID)
				}
			}
		}
	}
}
