package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blockwars.gg/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	engineID := fs.String("engine", "", "engine id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	player := fs.String("player", "", "player filter (events)")
	typ := fs.String("type", "", "event type filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*engineID) == "" {
			fmt.Fprintln(os.Stderr, "missing -engine or -db")
			os.Exit(2)
		}
		path = filepath.Join(engineDir(*dataDir, *engineID), "index", "engine.sqlite")
	}

	db, err := indexdb.OpenQuery(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "snapshots":
		rows, err := indexdb.QuerySnapshots(ctx, db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(struct {
				Seq        uint64 `json:"seq"`
				Path       string `json:"path"`
				SavedAt    string `json:"saved_at"`
				Players    int    `json:"players"`
				Pool       int    `json:"pool"`
				Tombstones int    `json:"tombstones"`
			}{r.Seq, r.Path, r.SavedAt, r.Players, r.Pool, r.Tombstones})
		}

	case "events":
		rows, err := indexdb.QueryEvents(ctx, db, indexdb.EventFilter{
			PlayerID: strings.TrimSpace(*player),
			Type:     strings.ToUpper(strings.TrimSpace(*typ)),
			Limit:    *limit,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(struct {
				Seq      uint64 `json:"seq"`
				Type     string `json:"type"`
				At       string `json:"at"`
				PlayerID string `json:"player_id,omitempty"`
				TargetID string `json:"target_id,omitempty"`
				BlockID  string `json:"block_id,omitempty"`
				Rarity   string `json:"rarity,omitempty"`
				Coins    int64  `json:"coins,omitempty"`
				Cost     int64  `json:"cost,omitempty"`
				Success  bool   `json:"success,omitempty"`
			}{r.Seq, r.Type, r.At, r.PlayerID, r.TargetID, r.BlockID, r.Rarity, r.Coins, r.Cost, r.Success})
		}

	case "players":
		rows, err := indexdb.QueryPlayers(ctx, db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(struct {
				PlayerID        string  `json:"player_id"`
				SnapshotSeq     uint64  `json:"snapshot_seq"`
				Coins           int64   `json:"coins"`
				Money           float64 `json:"money"`
				Level           int     `json:"level"`
				Experience      int64   `json:"experience"`
				Blocks          int     `json:"blocks"`
				CollectionValue int64   `json:"collection_value"`
			}{r.PlayerID, r.SnapshotSeq, r.Coins, float64(r.MoneyMilli) / 1000, r.Level, r.Experience, r.Blocks, r.CollectionValue})
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-engine ID|-db PATH] [-limit N] [-player P] [-type T] snapshots|events|players")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
