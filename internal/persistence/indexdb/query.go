package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// OpenQuery opens an existing index database for queries (admin tooling).
// It does not start a writer.
func OpenQuery(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type EventRecord struct {
	Seq      uint64
	Type     string
	At       string
	PlayerID string
	TargetID string
	BlockID  string
	Rarity   string
	Coins    int64
	Cost     int64
	Success  bool
}

type EventFilter struct {
	PlayerID string
	Type     string
	Limit    int
}

// QueryEvents returns the newest matching events first.
func QueryEvents(ctx context.Context, db *sql.DB, f EventFilter) ([]EventRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	q := `SELECT seq,type,at,player_id,target_id,block_id,rarity,coins,cost,success FROM events WHERE 1=1`
	var args []any
	if f.PlayerID != "" {
		q += ` AND (player_id = ? OR target_id = ?)`
		args = append(args, f.PlayerID, f.PlayerID)
	}
	if f.Type != "" {
		q += ` AND type = ?`
		args = append(args, f.Type)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var seq int64
		var success int
		if err := rows.Scan(&seq, &r.Type, &r.At, &r.PlayerID, &r.TargetID, &r.BlockID, &r.Rarity, &r.Coins, &r.Cost, &success); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

type PlayerRecord struct {
	PlayerID        string
	SnapshotSeq     uint64
	Coins           int64
	MoneyMilli      int64
	Level           int
	Experience      int64
	Blocks          int
	CollectionValue int64
}

// QueryPlayers returns players as of their latest indexed snapshot, richest first.
func QueryPlayers(ctx context.Context, db *sql.DB, limit int) ([]PlayerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT player_id,snapshot_seq,coins,money_milli,level,experience,blocks,collection_value
		FROM players ORDER BY coins DESC, player_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()
	var out []PlayerRecord
	for rows.Next() {
		var r PlayerRecord
		var seq int64
		if err := rows.Scan(&r.PlayerID, &seq, &r.Coins, &r.MoneyMilli, &r.Level, &r.Experience, &r.Blocks, &r.CollectionValue); err != nil {
			return nil, err
		}
		r.SnapshotSeq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

type SnapshotRecord struct {
	Seq        uint64
	Path       string
	SavedAt    string
	Players    int
	Pool       int
	Tombstones int
}

func QuerySnapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT seq,path,saved_at,players,pool,tombstones FROM snapshots ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []SnapshotRecord
	for rows.Next() {
		var r SnapshotRecord
		var seq int64
		if err := rows.Scan(&seq, &r.Path, &r.SavedAt, &r.Players, &r.Pool, &r.Tombstones); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}
