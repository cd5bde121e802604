package game

import (
	"errors"
	"time"

	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
)

type State struct {
	ServerTime  time.Time
	NextSpawnAt time.Time
	Pool        []model.BlockInstance
	Leaderboard []players.Standing
	// Player is set when a known player id was requested.
	Player *model.Player
}

// State returns the arena, the leaderboard and, for a known player id, the settled player.
// The leaderboard is eventually consistent: it is read player by player.
func (e *Engine) State(playerID string) (State, error) {
	now := e.clock()
	st := State{
		ServerTime:  now,
		NextSpawnAt: e.pool.NextSpawnAt(),
		Pool:        e.pool.List(),
		Leaderboard: e.players.Leaderboard(e.tune.LeaderboardSize),
	}
	if playerID == "" {
		return st, nil
	}
	p, err := e.Settle(playerID)
	if errors.Is(err, ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Player = p
	return st, nil
}

// Player returns a stored player without settling. ok is false for unknown ids.
func (e *Engine) Player(id string) (*model.Player, bool) {
	return e.players.Get(id)
}

func (e *Engine) Players() []*model.Player {
	return e.players.List()
}
