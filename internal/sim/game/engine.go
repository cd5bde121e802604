// Package game is the authoritative Block Wars engine: it owns the arena pool and
// the player store and resolves claims, purchases, steals, sales and income.
//
// Unlike a tick-driven world, operations run on the caller's goroutine. Each one
// is all-or-nothing: it works on copies under the player lock(s) and commits only
// when every precondition held.
package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/arena"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/economy"
	"blockwars.gg/internal/sim/model"
	"blockwars.gg/internal/sim/players"
	"blockwars.gg/internal/sim/rng"
	"blockwars.gg/internal/sim/tuning"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

type Config struct {
	ID   string
	Seed int64
	// TombstoneTTL bounds how long claimed and sold ids are remembered. Zero keeps a day.
	TombstoneTTL time.Duration
}

type Engine struct {
	cfg   Config
	tune  tuning.Tuning
	rules economy.Rules
	cats  *catalogs.Catalogs

	clock    Clock
	rand     rng.Source
	logger   *log.Logger
	notifier Notifier
	newID    func() string

	pool    *arena.Pool
	mint    arena.Minter
	sched   *arena.Scheduler
	players *players.Store
	chains  map[string]bool

	// barrier lets snapshots observe pool and players together.
	// Operations hold it shared; export holds it exclusively.
	barrier sync.RWMutex

	seq          atomic.Uint64
	snapshotSink chan<- snapshot.SnapshotV1

	stats counters
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithRand(r rng.Source) Option { return func(e *Engine) { e.rand = r } }

func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithIDGen overrides instance id generation (UUIDs by default).
func WithIDGen(f func() string) Option { return func(e *Engine) { e.newID = f } }

func New(cfg Config, tune tuning.Tuning, cats *catalogs.Catalogs, opts ...Option) (*Engine, error) {
	if cats == nil || len(cats.Blocks.Types) == 0 {
		return nil, fmt.Errorf("game: empty block catalog")
	}
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "default"
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = 24 * time.Hour
	}
	e := &Engine{
		cfg:   cfg,
		tune:  tune,
		rules: economy.NewRules(tune),
		cats:  cats,
		clock: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rand == nil {
		e.rand = rng.New(cfg.Seed)
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	if len(tune.Purchase.Chains) > 0 {
		e.chains = map[string]bool{}
		for _, c := range tune.Purchase.Chains {
			e.chains[strings.ToLower(strings.TrimSpace(c))] = true
		}
	}

	e.pool = arena.NewPool(tune.Spawn.MaxPoolSize)
	e.mint = arena.Minter{Catalog: cats.Blocks, Rules: e.rules, Rand: e.rand, NewID: e.newID}
	e.sched = arena.NewScheduler(e.pool, e.mint, tune.SpawnInterval(), tune.Spawn.MinBatch, tune.Spawn.MaxBatch)
	e.players = players.NewStore(e.newPlayer)
	e.sched.Start(e.clock())
	return e, nil
}

func (e *Engine) ID() string                   { return e.cfg.ID }
func (e *Engine) Tuning() tuning.Tuning        { return e.tune }
func (e *Engine) Rules() economy.Rules         { return e.rules }
func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }
func (e *Engine) Now() time.Time               { return e.clock() }

func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetSnapshotSink must be called before Run.
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

func (e *Engine) newPlayer(id string) *model.Player {
	now := e.clock()
	st := e.tune.Starter
	return &model.Player{
		ID:                   id,
		Coins:                st.Coins,
		MoneyMilli:           economy.MoneyToMilli(st.Money),
		Level:                1,
		AttackPower:          st.Attack,
		DefenseStrength:      st.Defense,
		LastAccrualSettledAt: now,
		CreatedAt:            now,
	}
}

// Run drives the spawn scheduler and periodic snapshots until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tune.TickInterval())
	defer ticker.Stop()

	snapEvery := e.tune.SnapshotEvery()
	lastSnap := e.clock()
	lastPrune := lastSnap

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := e.clock()
			e.Spawn()
			if e.snapshotSink != nil && snapEvery > 0 && now.Sub(lastSnap) >= snapEvery {
				lastSnap = now
				select {
				case e.snapshotSink <- e.ExportSnapshot():
				default:
					e.logger.Printf("snapshot sink full; skipping snapshot at seq %d", e.seq.Load())
				}
			}
			if now.Sub(lastPrune) >= time.Hour {
				lastPrune = now
				if n := e.pool.PruneTombstones(now.Add(-e.cfg.TombstoneTTL)); n > 0 {
					e.logger.Printf("pruned %d tombstones", n)
				}
			}
		}
	}
}

// Spawn runs one scheduler tick. It is a no-op until the current window is due.
func (e *Engine) Spawn() []model.BlockInstance {
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	now := e.clock()
	spawned := e.sched.Tick(now)
	if len(spawned) > 0 {
		e.stats.spawned.Add(uint64(len(spawned)))
		e.emit(Event{Type: EventBlocksSpawned, At: now, Blocks: spawned})
	}
	return spawned
}

// ForceSpawn adds a batch regardless of the spawn window. Operator use only.
func (e *Engine) ForceSpawn() []model.BlockInstance {
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	now := e.clock()
	spawned := e.sched.Force(now)
	if len(spawned) > 0 {
		e.stats.spawned.Add(uint64(len(spawned)))
		e.emit(Event{Type: EventBlocksSpawned, At: now, Blocks: spawned})
	}
	return spawned
}

func (e *Engine) Pool() []model.BlockInstance { return e.pool.List() }

func (e *Engine) NextSpawnAt() time.Time { return e.pool.NextSpawnAt() }

// Seed places an instance directly into the pool. Operator and test use.
func (e *Engine) Seed(b model.BlockInstance) bool {
	e.barrier.RLock()
	defer e.barrier.RUnlock()
	return e.pool.Put(b)
}
