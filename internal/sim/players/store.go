// Package players keeps authoritative player records behind per-player locks.
//
// Every mutation goes through Update or UpdatePair: the callback works on a
// private copy, and the copy replaces the stored record only if the callback
// returns nil. A failed operation therefore leaves no trace.
package players

import (
	"errors"
	"sort"
	"sync"

	"blockwars.gg/internal/sim/model"
)

var (
	ErrNotFound = errors.New("players: not found")
	ErrSameID   = errors.New("players: pair update needs two distinct players")
)

// Factory builds a new player record for a first-seen id.
type Factory func(id string) *model.Player

type entry struct {
	mu sync.Mutex
	p  *model.Player
}

type Store struct {
	newPlayer Factory

	mu      sync.RWMutex
	entries map[string]*entry

	ownMu  sync.RWMutex
	owners map[string]string // block id -> player id
}

func NewStore(f Factory) *Store {
	if f == nil {
		f = func(id string) *model.Player { return &model.Player{ID: id, Level: 1} }
	}
	return &Store{
		newPlayer: f,
		entries:   map[string]*entry{},
		owners:    map[string]string{},
	}
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *Store) lookupOrCreate(id string) *entry {
	if e := s.lookup(id); e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[id]; e != nil {
		return e
	}
	e := &entry{p: s.newPlayer(id)}
	s.entries[id] = e
	return e
}

// Get returns a copy of the stored record.
func (s *Store) Get(id string) (*model.Player, bool) {
	e := s.lookup(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Clone(), true
}

func (s *Store) Exists(id string) bool {
	return s.lookup(id) != nil
}

// Update runs fn on a copy of an existing player and commits the copy on success.
func (s *Store) Update(id string, fn func(p *model.Player) error) (*model.Player, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, ErrNotFound
	}
	return s.update(e, fn)
}

// UpdateOrCreate is Update for ids that are created on first contact.
func (s *Store) UpdateOrCreate(id string, fn func(p *model.Player) error) (*model.Player, error) {
	return s.update(s.lookupOrCreate(id), fn)
}

func (s *Store) update(e *entry, fn func(p *model.Player) error) (*model.Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	work := e.p.Clone()
	if err := fn(work); err != nil {
		return e.p.Clone(), err
	}
	s.commit(e, work)
	return work.Clone(), nil
}

// UpdatePair locks both players in id order and commits both copies together.
// Both players must already exist.
func (s *Store) UpdatePair(aID, bID string, fn func(a, b *model.Player) error) (*model.Player, *model.Player, error) {
	if aID == bID {
		return nil, nil, ErrSameID
	}
	ea, eb := s.lookup(aID), s.lookup(bID)
	if ea == nil || eb == nil {
		return nil, nil, ErrNotFound
	}
	first, second := ea, eb
	if bID < aID {
		first, second = eb, ea
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	wa, wb := ea.p.Clone(), eb.p.Clone()
	if err := fn(wa, wb); err != nil {
		return ea.p.Clone(), eb.p.Clone(), err
	}
	s.commit(ea, wa)
	s.commit(eb, wb)
	return wa.Clone(), wb.Clone(), nil
}

func (s *Store) commit(e *entry, next *model.Player) {
	prev := e.p
	next.Version = prev.Version + 1

	s.ownMu.Lock()
	for _, b := range prev.OwnedBlocks {
		if s.owners[b.ID] == prev.ID {
			delete(s.owners, b.ID)
		}
	}
	for _, b := range next.OwnedBlocks {
		s.owners[b.ID] = next.ID
	}
	s.ownMu.Unlock()

	e.p = next
}

// Owner reports which player holds a block instance.
// The answer may be stale by the time the caller acts; re-check under the player lock.
func (s *Store) Owner(blockID string) (string, bool) {
	s.ownMu.RLock()
	defer s.ownMu.RUnlock()
	id, ok := s.owners[blockID]
	return id, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// List returns copies of every player ordered by id.
func (s *Store) List() []*model.Player {
	s.mu.RLock()
	es := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		es = append(es, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Player, 0, len(es))
	for _, e := range es {
		e.mu.Lock()
		out = append(out, e.p.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Standing is one leaderboard row.
type Standing struct {
	PlayerID        string `json:"player_id"`
	Level           int    `json:"level"`
	Coins           int64  `json:"coins"`
	CollectionValue int64  `json:"collection_value"`
	Blocks          int    `json:"blocks"`
}

// Leaderboard ranks players by coins, then collection value, then id.
func (s *Store) Leaderboard(n int) []Standing {
	ps := s.List()
	rows := make([]Standing, 0, len(ps))
	for _, p := range ps {
		var v int64
		for _, b := range p.OwnedBlocks {
			v += b.Value
		}
		rows = append(rows, Standing{PlayerID: p.ID, Level: p.Level, Coins: p.Coins, CollectionValue: v, Blocks: len(p.OwnedBlocks)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Coins != rows[j].Coins {
			return rows[i].Coins > rows[j].Coins
		}
		if rows[i].CollectionValue != rows[j].CollectionValue {
			return rows[i].CollectionValue > rows[j].CollectionValue
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Export returns copies of all records for snapshotting.
func (s *Store) Export() []model.Player {
	ps := s.List()
	out := make([]model.Player, 0, len(ps))
	for _, p := range ps {
		out = append(out, *p)
	}
	return out
}

// Import replaces the store contents. It is meant for startup, before traffic.
func (s *Store) Import(ps []model.Player) {
	entries := make(map[string]*entry, len(ps))
	owners := map[string]string{}
	for i := range ps {
		p := ps[i].Clone()
		entries[p.ID] = &entry{p: p}
		for _, b := range p.OwnedBlocks {
			owners[b.ID] = p.ID
		}
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.ownMu.Lock()
	s.owners = owners
	s.ownMu.Unlock()
}
