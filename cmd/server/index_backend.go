package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"blockwars.gg/internal/persistence/indexdb"
	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/tuning"
)

type runtimeIndex interface {
	game.Notifier
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "engine.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported BW_INDEX_BACKEND: %s", backend)
	}
}
