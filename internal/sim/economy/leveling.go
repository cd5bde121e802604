package economy

// Level returns floor(xp/xpPerLevel)+1. Negative xp counts as zero.
func Level(xp, xpPerLevel int64) int {
	if xpPerLevel <= 0 {
		xpPerLevel = 100
	}
	if xp < 0 {
		xp = 0
	}
	return int(xp/xpPerLevel) + 1
}

func (r Rules) Level(xp int64) int {
	return Level(xp, r.tune.Leveling.XPPerLevel)
}

// LevelUp describes the levels crossed by one XP award.
type LevelUp struct {
	From         int `json:"from"`
	To           int `json:"to"`
	AttackBonus  int `json:"attack_bonus"`
	DefenseBonus int `json:"defense_bonus"`
}

func (l LevelUp) Gained() int { return l.To - l.From }

// AwardXP returns the new experience total and the level change it causes.
// Bonuses are per level crossed, so a multi-level jump pays every level once.
func (r Rules) AwardXP(xp, amount int64) (newXP int64, up LevelUp) {
	if amount < 0 {
		amount = 0
	}
	newXP = xp + amount
	up.From = r.Level(xp)
	up.To = r.Level(newXP)
	if n := up.Gained(); n > 0 {
		up.AttackBonus = n * r.tune.Leveling.AttackPerLevel
		up.DefenseBonus = n * r.tune.Leveling.DefensePerLevel
	}
	return newXP, up
}
