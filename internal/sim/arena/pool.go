package arena

import (
	"errors"
	"sync"
	"time"

	"blockwars.gg/internal/sim/model"
)

var (
	ErrUnknownBlock   = errors.New("arena: unknown block")
	ErrAlreadyClaimed = errors.New("arena: block already claimed")
)

// Tombstone remembers an instance that left the pool, so late claims can be
// answered with "already claimed" instead of "not found".
type Tombstone struct {
	Winner string    `json:"winner"`
	At     time.Time `json:"at"`
	Sold   bool      `json:"sold,omitempty"`
}

// Pool is the shared set of unowned block instances.
// Take is the only way out of the pool and succeeds at most once per id.
type Pool struct {
	maxSize int

	mu          sync.Mutex
	blocks      map[string]model.BlockInstance
	order       []string
	tombstones  map[string]Tombstone
	nextSpawnAt time.Time
}

func NewPool(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 24
	}
	return &Pool{
		maxSize:    maxSize,
		blocks:     map[string]model.BlockInstance{},
		tombstones: map[string]Tombstone{},
	}
}

func (p *Pool) MaxSize() int { return p.maxSize }

// Put appends an unowned instance. It reports false when the pool is full,
// the id is already present, or the id was retired earlier.
func (p *Pool) Put(b model.BlockInstance) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.putLocked(b)
}

func (p *Pool) putLocked(b model.BlockInstance) bool {
	if b.ID == "" || b.Owned() || len(p.blocks) >= p.maxSize {
		return false
	}
	if _, ok := p.blocks[b.ID]; ok {
		return false
	}
	if _, ok := p.tombstones[b.ID]; ok {
		return false
	}
	p.blocks[b.ID] = b
	p.order = append(p.order, b.ID)
	return true
}

// Take atomically removes the instance and stamps the owner on the returned copy.
// The first caller for an id wins; later callers get ErrAlreadyClaimed.
func (p *Pool) Take(id, ownerID string, now time.Time) (model.BlockInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blocks[id]
	if !ok {
		if _, gone := p.tombstones[id]; gone {
			return model.BlockInstance{}, ErrAlreadyClaimed
		}
		return model.BlockInstance{}, ErrUnknownBlock
	}
	delete(p.blocks, id)
	p.removeOrderLocked(id)
	p.tombstones[id] = Tombstone{Winner: ownerID, At: now}
	b.OwnerID = ownerID
	return b, nil
}

// Peek returns a pool instance without removing it.
func (p *Pool) Peek(id string) (model.BlockInstance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blocks[id]
	return b, ok
}

// Retire records an owned instance that was destroyed, so its id is never reused.
func (p *Pool) Retire(id string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.tombstones[id]
	t.At = now
	t.Sold = true
	p.tombstones[id] = t
}

func (p *Pool) removeOrderLocked(id string) {
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// List returns the pool contents in spawn order.
func (p *Pool) List() []model.BlockInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.BlockInstance, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.blocks[id])
	}
	return out
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks)
}

func (p *Pool) NextSpawnAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSpawnAt
}

func (p *Pool) SetNextSpawnAt(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSpawnAt = t
}

// PruneTombstones forgets claim/sale records older than cutoff.
func (p *Pool) PruneTombstones(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, t := range p.tombstones {
		if t.At.Before(cutoff) {
			delete(p.tombstones, id)
			n++
		}
	}
	return n
}

// State is the serializable form of a pool.
type State struct {
	Blocks      []model.BlockInstance
	Tombstones  map[string]Tombstone
	NextSpawnAt time.Time
}

func (p *Pool) Export() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := State{
		Blocks:      make([]model.BlockInstance, 0, len(p.order)),
		Tombstones:  make(map[string]Tombstone, len(p.tombstones)),
		NextSpawnAt: p.nextSpawnAt,
	}
	for _, id := range p.order {
		s.Blocks = append(s.Blocks, p.blocks[id])
	}
	for id, t := range p.tombstones {
		s.Tombstones[id] = t
	}
	return s
}

func (p *Pool) Import(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = map[string]model.BlockInstance{}
	p.order = nil
	p.tombstones = make(map[string]Tombstone, len(s.Tombstones))
	for id, t := range s.Tombstones {
		p.tombstones[id] = t
	}
	for _, b := range s.Blocks {
		p.putLocked(b)
	}
	p.nextSpawnAt = s.NextSpawnAt
}
