package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of engine events and snapshot state.
// Writes are queued and applied by one goroutine in batched transactions; when the
// queue is full the write is dropped and counted. The JSONL event log stays the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	event    eventRow
	snapshot snapshotRow
	state    []playerRow
}

type eventRow struct {
	Seq      uint64
	Type     string
	At       string
	PlayerID string
	TargetID string
	BlockID  string
	Rarity   string
	Coins    int64
	Cost     int64
	Success  int
	Raw      string
}

type snapshotRow struct {
	Seq        uint64
	Path       string
	SavedAt    string
	Players    int
	Pool       int
	Tombstones int
}

type playerRow struct {
	SnapshotSeq     uint64
	PlayerID        string
	Coins           int64
	MoneyMilli      int64
	Level           int
	Experience      int64
	Blocks          int
	CollectionValue int64
}

type Stats struct {
	QueueDepth             int
	QueueCapacity          int
	DropEventTotal         uint64
	DropSnapshotTotal      uint64
	DropSnapshotStateTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			at TEXT NOT NULL,
			player_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			block_id TEXT NOT NULL,
			rarity TEXT NOT NULL,
			coins INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			success INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_player_seq ON events(player_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_block ON events(block_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			players INTEGER NOT NULL,
			pool INTEGER NOT NULL,
			tombstones INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			snapshot_seq INTEGER NOT NULL,
			coins INTEGER NOT NULL,
			money_milli INTEGER NOT NULL,
			level INTEGER NOT NULL,
			experience INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			collection_value INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_players_coins ON players(coins DESC);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropEventTotal:         s.dropEvent.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

// Notify queues an engine event. It implements game.Notifier and never blocks.
func (s *SQLiteIndex) Notify(ev game.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	raw, _ := json.Marshal(ev.Wire())
	r := eventRow{
		Seq:      ev.Seq,
		Type:     ev.Type,
		At:       ev.At.UTC().Format(time.RFC3339Nano),
		PlayerID: ev.PlayerID,
		TargetID: ev.TargetID,
		Coins:    ev.Coins,
		Cost:     ev.Cost,
		Raw:      string(raw),
	}
	if ev.Block != nil {
		r.BlockID = ev.Block.ID
		r.Rarity = string(ev.Block.Rarity)
	}
	if ev.Success {
		r.Success = 1
	}
	select {
	case s.ch <- req{kind: reqEvent, event: r}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Seq:        snap.Header.Seq,
		Path:       path,
		SavedAt:    time.UnixMilli(snap.Header.SavedAt).UTC().Format(time.RFC3339Nano),
		Players:    len(snap.Players),
		Pool:       len(snap.Pool),
		Tombstones: len(snap.Tombstones),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// RecordSnapshotState refreshes the players table from a snapshot.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	rows := make([]playerRow, 0, len(snap.Players))
	for _, p := range snap.Players {
		var v int64
		for _, b := range p.OwnedBlocks {
			v += b.Value
		}
		rows = append(rows, playerRow{
			SnapshotSeq:     snap.Header.Seq,
			PlayerID:        p.ID,
			Coins:           p.Coins,
			MoneyMilli:      p.MoneyMilli,
			Level:           p.Level,
			Experience:      p.Experience,
			Blocks:          len(p.OwnedBlocks),
			CollectionValue: v,
		})
	}
	select {
	case s.ch <- req{kind: reqSnapshotState, state: rows}:
	default:
		s.dropSnapshotState.Add(1)
	}
}

// UpsertCatalogs stores the catalog and the applied tuning so the index is self-describing.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks", digest: cats.Blocks.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(seq,type,at,player_id,target_id,block_id,rarity,coins,cost,success,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,saved_at,players,pool,tombstones) VALUES(?,?,?,?,?,?)`)
	upsertPlayer, _ := s.db.Prepare(`INSERT OR REPLACE INTO players(player_id,snapshot_seq,coins,money_milli,level,experience,blocks,collection_value) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertSnapshot, upsertPlayer} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Idle batches still reach readers within commitMaxWait.
	flush := time.NewTicker(commitMaxWait)
	defer flush.Stop()

	for {
		var r req
		select {
		case <-flush.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			if insertEvent == nil {
				break
			}
			if _, err := tx.Stmt(insertEvent).Exec(
				int64(e.Seq), e.Type, e.At, e.PlayerID, e.TargetID, e.BlockID, e.Rarity,
				e.Coins, e.Cost, e.Success, e.Raw,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				break
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Seq), sn.Path, sn.SavedAt, sn.Players, sn.Pool, sn.Tombstones); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshotState:
			if upsertPlayer == nil {
				break
			}
			for _, p := range r.state {
				if _, err := tx.Stmt(upsertPlayer).Exec(
					p.PlayerID, int64(p.SnapshotSeq), p.Coins, p.MoneyMilli, p.Level, p.Experience, p.Blocks, p.CollectionValue,
				); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
