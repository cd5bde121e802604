package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickIntervalMs  int `yaml:"tick_interval_ms"`
	SnapshotEveryS  int `yaml:"snapshot_every_s"`
	LeaderboardSize int `yaml:"leaderboard_size"`
	CollectionCap   int `yaml:"collection_cap"`

	Starter  Starter               `yaml:"starter"`
	Spawn    Spawn                 `yaml:"spawn"`
	Rarity   map[string]RarityRule `yaml:"rarity"`
	Steal    Steal                 `yaml:"steal"`
	Leveling Leveling              `yaml:"leveling"`
	Purchase Purchase              `yaml:"purchase"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type Starter struct {
	Coins   int64 `yaml:"coins"`
	Money   int64 `yaml:"money"`
	Attack  int   `yaml:"attack"`
	Defense int   `yaml:"defense"`
}

type Spawn struct {
	IntervalS   int `yaml:"interval_s"`
	MinBatch    int `yaml:"min_batch"`
	MaxBatch    int `yaml:"max_batch"`
	MaxPoolSize int `yaml:"max_pool_size"`
}

// RarityRule holds every per-rarity number of the economy.
// Money amounts are whole units; the engine stores money in milli-units.
type RarityRule struct {
	StatMultiplier         int64 `yaml:"stat_multiplier" json:"stat_multiplier"`
	IncomePerMinute        int64 `yaml:"income_per_minute" json:"income_per_minute"`
	PurchasePrice          int64 `yaml:"purchase_price" json:"purchase_price"`
	SellMultiplierPermille int64 `yaml:"sell_multiplier_permille" json:"sell_multiplier_permille"`
	ClaimXP                int64 `yaml:"claim_xp" json:"claim_xp"`
}

type Steal struct {
	CostPermille    int64 `yaml:"cost_permille"`
	SuccessPermille int   `yaml:"success_permille"`
	XP              int64 `yaml:"xp"`
}

type Leveling struct {
	XPPerLevel      int64 `yaml:"xp_per_level"`
	AttackPerLevel  int   `yaml:"attack_per_level"`
	DefensePerLevel int   `yaml:"defense_per_level"`
}

type Purchase struct {
	// Chains lists accepted payment chains. Empty accepts any non-empty label.
	Chains []string `yaml:"chains"`
}

type RateLimits struct {
	ActionsPerSecond float64 `yaml:"actions_per_second"`
	Burst            int     `yaml:"burst"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	t := Tuning{ProtocolVersion: "1.0", Starter: Starter{Coins: 100}}
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.TickIntervalMs <= 0 {
		t.TickIntervalMs = 1000
	}
	if t.SnapshotEveryS <= 0 {
		t.SnapshotEveryS = 300
	}
	if t.LeaderboardSize <= 0 {
		t.LeaderboardSize = 10
	}
	if t.CollectionCap <= 0 {
		t.CollectionCap = 12
	}
	if t.Starter.Attack <= 0 {
		t.Starter.Attack = 10
	}
	if t.Starter.Defense <= 0 {
		t.Starter.Defense = 10
	}
	if t.Starter.Coins < 0 {
		t.Starter.Coins = 0
	}
	if t.Starter.Money < 0 {
		t.Starter.Money = 0
	}
	if t.Spawn.IntervalS <= 0 {
		t.Spawn.IntervalS = 120
	}
	if t.Spawn.MinBatch <= 0 {
		t.Spawn.MinBatch = 1
	}
	if t.Spawn.MaxBatch <= 0 {
		t.Spawn.MaxBatch = 3
	}
	if t.Spawn.MaxPoolSize <= 0 {
		t.Spawn.MaxPoolSize = 24
	}

	defaults := defaultRarityRules()
	if t.Rarity == nil {
		t.Rarity = map[string]RarityRule{}
	}
	for name, def := range defaults {
		r, ok := t.Rarity[name]
		if !ok {
			t.Rarity[name] = def
			continue
		}
		if r.StatMultiplier <= 0 {
			r.StatMultiplier = def.StatMultiplier
		}
		if r.SellMultiplierPermille <= 0 {
			r.SellMultiplierPermille = def.SellMultiplierPermille
		}
		t.Rarity[name] = r
	}

	if t.Steal.CostPermille <= 0 {
		t.Steal.CostPermille = 100
	}
	if t.Steal.SuccessPermille <= 0 {
		t.Steal.SuccessPermille = 500
	}
	if t.Steal.XP <= 0 {
		t.Steal.XP = 15
	}
	if t.Leveling.XPPerLevel <= 0 {
		t.Leveling.XPPerLevel = 100
	}
	if t.Leveling.AttackPerLevel <= 0 {
		t.Leveling.AttackPerLevel = 5
	}
	if t.Leveling.DefensePerLevel <= 0 {
		t.Leveling.DefensePerLevel = 10
	}
	if t.RateLimits.ActionsPerSecond <= 0 {
		t.RateLimits.ActionsPerSecond = 5
	}
	if t.RateLimits.Burst <= 0 {
		t.RateLimits.Burst = 10
	}
}

func defaultRarityRules() map[string]RarityRule {
	return map[string]RarityRule{
		"common":    {StatMultiplier: 1, IncomePerMinute: 1, PurchasePrice: 0, SellMultiplierPermille: 600, ClaimXP: 10},
		"rare":      {StatMultiplier: 2, IncomePerMinute: 5, PurchasePrice: 5000, SellMultiplierPermille: 650, ClaimXP: 20},
		"epic":      {StatMultiplier: 4, IncomePerMinute: 15, PurchasePrice: 15000, SellMultiplierPermille: 700, ClaimXP: 30},
		"legendary": {StatMultiplier: 8, IncomePerMinute: 50, PurchasePrice: 50000, SellMultiplierPermille: 750, ClaimXP: 50},
		"secret":    {StatMultiplier: 16, IncomePerMinute: 150, PurchasePrice: 150000, SellMultiplierPermille: 800, ClaimXP: 80},
	}
}

// MaxCollection is the hard ceiling on blocks one player may hold.
const MaxCollection = 12

func (t Tuning) Validate() error {
	if t.CollectionCap > MaxCollection {
		return fmt.Errorf("collection_cap %d > %d", t.CollectionCap, MaxCollection)
	}
	if t.Steal.CostPermille > 1000 {
		return fmt.Errorf("steal.cost_permille %d > 1000", t.Steal.CostPermille)
	}
	if c, ok := t.Rarity["common"]; ok && c.PurchasePrice != 0 {
		return fmt.Errorf("rarity common: purchase_price must be 0, common blocks are not for sale")
	}
	if t.Spawn.MinBatch > t.Spawn.MaxBatch {
		return fmt.Errorf("spawn.min_batch %d > spawn.max_batch %d", t.Spawn.MinBatch, t.Spawn.MaxBatch)
	}
	if t.Steal.SuccessPermille > 1000 {
		return fmt.Errorf("steal.success_permille %d > 1000", t.Steal.SuccessPermille)
	}
	for name, r := range t.Rarity {
		if r.IncomePerMinute < 0 || r.PurchasePrice < 0 || r.ClaimXP < 0 {
			return fmt.Errorf("rarity %s: negative value", name)
		}
		if r.SellMultiplierPermille > 1000 {
			return fmt.Errorf("rarity %s: sell_multiplier_permille %d > 1000", name, r.SellMultiplierPermille)
		}
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}

func (t Tuning) SpawnInterval() time.Duration {
	return time.Duration(t.Spawn.IntervalS) * time.Second
}

func (t Tuning) SnapshotEvery() time.Duration {
	return time.Duration(t.SnapshotEveryS) * time.Second
}
