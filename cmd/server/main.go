package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "blockwars.gg/internal/persistence/log"
	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/sim/catalogs"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		engineID   = flag.String("engine", "arena_1", "engine id")
		seed       = flag.Int64("seed", 1337, "random seed (used only when starting fresh)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (events + snapshot state)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	engineDir := filepath.Join(*dataDir, "engines", *engineID)
	_ = os.MkdirAll(engineDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(engineDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(filepath.Join(engineDir, "snapshots"))
	}

	eng, err := game.New(game.Config{ID: *engineID, Seed: *seed}, tune, cats, game.WithLogger(logger))
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.EngineID != "" && snap.Header.EngineID != *engineID {
			logger.Fatalf("snapshot engine id mismatch: flag=%s snap=%s", *engineID, snap.Header.EngineID)
		}
		if err := eng.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s seq=%d players=%d pool=%d",
			filepath.Base(snapshotToLoad), snap.Header.Seq, len(snap.Players), len(snap.Pool))
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt := &serverRuntime{
		eng:       eng,
		hub:       newHub(eng, logger),
		idx:       idx,
		dataDir:   engineDir,
		logger:    logger,
		adminHTTP: envBool("BW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		pprofHTTP: envBool("BW_ENABLE_PPROF_HTTP", false),
	}

	eventLog := persistlog.NewEventLogger(engineDir)
	defer eventLog.Close()
	notifiers := game.MultiNotifier{eventLog, rt.hub}
	if idx != nil {
		notifiers = append(notifiers, idx)
	}
	eng.SetNotifier(notifiers)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	eng.SetSnapshotSink(snapCh)
	go rt.runSnapshotWriter(ctx, snapCh)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-runDone
	if path, err := rt.persistSnapshot(eng.ExportSnapshot()); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot=%s", filepath.Base(path))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
