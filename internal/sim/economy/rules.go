// Package economy holds the pure rules of the block economy: income, prices,
// XP awards and steal odds. Nothing here keeps state.
package economy

import (
	"time"

	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/tuning"
)

// MoneyScale is the number of stored milli-units per unit of money.
const MoneyScale = 1000

type Rules struct {
	tune tuning.Tuning
}

func NewRules(t tuning.Tuning) Rules {
	return Rules{tune: t}
}

func (r Rules) Tuning() tuning.Tuning { return r.tune }

func (r Rules) CollectionCap() int { return r.tune.CollectionCap }

func (r Rules) rule(rarity catalogs.Rarity) tuning.RarityRule {
	return r.tune.Rarity[string(rarity)]
}

// IncomePerMinute is the whole-unit money one owned block of this tier earns per minute.
func (r Rules) IncomePerMinute(rarity catalogs.Rarity) int64 {
	return r.rule(rarity).IncomePerMinute
}

// PurchasePrice returns the whole-unit money price. ok is false for tiers that cannot be bought.
func (r Rules) PurchasePrice(rarity catalogs.Rarity) (price int64, ok bool) {
	if rarity.Rank() <= catalogs.Common.Rank() {
		return 0, false
	}
	p := r.rule(rarity).PurchasePrice
	if p <= 0 {
		return 0, false
	}
	return p, true
}

// SellPrice is floor(value * sellMultiplier).
func (r Rules) SellPrice(value int64, rarity catalogs.Rarity) int64 {
	if value <= 0 {
		return 0
	}
	return value * r.rule(rarity).SellMultiplierPermille / 1000
}

func (r Rules) ClaimXP(rarity catalogs.Rarity) int64 {
	return r.rule(rarity).ClaimXP
}

// StealCost is floor(value * cost fraction); paid whether or not the attempt succeeds.
func (r Rules) StealCost(value int64) int64 {
	if value <= 0 {
		return 0
	}
	return value * r.tune.Steal.CostPermille / 1000
}

func (r Rules) StealSuccessPermille() int { return r.tune.Steal.SuccessPermille }

func (r Rules) StealXP() int64 { return r.tune.Steal.XP }

// Stats derives instance stats from an archetype and a tier.
func (r Rules) Stats(a catalogs.BlockArchetype, rarity catalogs.Rarity) (value int64, power, defense int) {
	m := r.rule(rarity).StatMultiplier
	if m <= 0 {
		m = 1
	}
	return a.BaseValue * m, a.BasePower * int(m), a.BaseDefense * int(m)
}

// AccrueMilli converts a per-minute whole-unit rate over elapsed wall time into milli-units.
// Sub-milli remainders are truncated.
func AccrueMilli(ratePerMinute int64, elapsed time.Duration) int64 {
	if ratePerMinute <= 0 || elapsed <= 0 {
		return 0
	}
	ms := elapsed.Milliseconds()
	// rate * MoneyScale * ms / 60000 == rate * ms / 60
	return ratePerMinute * ms / 60
}

// Accrue is AccrueMilli with an explicit remainder so that many short settles add
// up to exactly one long one. elapsed is consumed in whole milliseconds; consumed
// is how far the settlement timestamp may advance. remainder is in 1/60 milli-units.
func Accrue(ratePerMinute int64, elapsed time.Duration, remainder int64) (milli int64, consumed time.Duration, nextRemainder int64) {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0, 0, remainder
	}
	consumed = time.Duration(ms) * time.Millisecond
	if ratePerMinute <= 0 {
		return 0, consumed, remainder
	}
	num := ratePerMinute*ms + remainder
	return num / 60, consumed, num % 60
}

// MoneyToMilli converts whole units to stored milli-units.
func MoneyToMilli(units int64) int64 { return units * MoneyScale }

// MilliToMoney renders stored milli-units as a decimal amount.
func MilliToMoney(milli int64) float64 { return float64(milli) / MoneyScale }
