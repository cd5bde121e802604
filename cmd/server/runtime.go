package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/protocol"
	"blockwars.gg/internal/sim/game"
	"blockwars.gg/internal/transport/api"
	"blockwars.gg/internal/transport/ws"
)

type serverRuntime struct {
	eng     *game.Engine
	hub     *ws.Hub
	idx     runtimeIndex
	dataDir string
	logger  *log.Logger

	adminHTTP bool
	pprofHTTP bool
}

func newHub(eng *game.Engine, logger *log.Logger) *ws.Hub {
	return ws.NewHub(logger, func() protocol.WelcomeMsg {
		return protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			ServerTime:      eng.Now(),
			CatalogDigest:   eng.Catalogs().Blocks.Digest,
			EventTypes:      protocol.EventTypes(),
		}
	})
}

func (rt *serverRuntime) snapshotDir() string { return filepath.Join(rt.dataDir, "snapshots") }

// persistSnapshot writes snap to disk and records it in the index.
func (rt *serverRuntime) persistSnapshot(snap snapshot.SnapshotV1) (string, error) {
	path := filepath.Join(rt.snapshotDir(), snapshot.FileName(snap.Header.Seq))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if rt.idx != nil {
		rt.idx.RecordSnapshot(path, snap)
		rt.idx.RecordSnapshotState(snap)
	}
	return path, nil
}

// runSnapshotWriter drains the engine's snapshot sink until ctx is done.
func (rt *serverRuntime) runSnapshotWriter(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if _, err := rt.persistSnapshot(snap); err != nil {
				rt.logger.Printf("snapshot write: %v", err)
			}
		}
	}
}

func (rt *serverRuntime) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.handleMetrics)
	api.NewServer(rt.eng, rt.logger).Register(mux)
	mux.HandleFunc("/v1/events", rt.hub.Handler())

	if rt.adminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", rt.handleAdminState)
		mux.HandleFunc("/admin/v1/snapshot", rt.handleAdminSnapshot)
		mux.HandleFunc("/admin/v1/spawn", rt.handleAdminSpawn)
	} else {
		rt.logger.Printf("admin endpoints disabled (BW_ENABLE_ADMIN_HTTP=false)")
	}
	if rt.pprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (rt *serverRuntime) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := rt.eng.Metrics()
	id := rt.eng.ID()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP blockwars_event_seq Last published engine event sequence.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_event_seq counter\n")
	fmt.Fprintf(rw, "blockwars_event_seq{engine=%q} %d\n", id, m.Seq)

	fmt.Fprintf(rw, "# HELP blockwars_players Known players.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_players gauge\n")
	fmt.Fprintf(rw, "blockwars_players{engine=%q} %d\n", id, m.Players)

	fmt.Fprintf(rw, "# HELP blockwars_pool_size Unclaimed blocks in the arena.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_pool_size gauge\n")
	fmt.Fprintf(rw, "blockwars_pool_size{engine=%q} %d\n", id, m.PoolSize)

	fmt.Fprintf(rw, "# HELP blockwars_ops_total Committed operations by kind.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_ops_total counter\n")
	fmt.Fprintf(rw, "blockwars_ops_total{engine=%q,op=%q} %d\n", id, "claim", m.Claims)
	fmt.Fprintf(rw, "blockwars_ops_total{engine=%q,op=%q} %d\n", id, "purchase", m.Purchases)
	fmt.Fprintf(rw, "blockwars_ops_total{engine=%q,op=%q} %d\n", id, "steal_attempt", m.StealAttempts)
	fmt.Fprintf(rw, "blockwars_ops_total{engine=%q,op=%q} %d\n", id, "steal_success", m.StealSuccesses)
	fmt.Fprintf(rw, "blockwars_ops_total{engine=%q,op=%q} %d\n", id, "sell", m.Sells)

	fmt.Fprintf(rw, "# HELP blockwars_spawned_total Blocks spawned into the arena.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_spawned_total counter\n")
	fmt.Fprintf(rw, "blockwars_spawned_total{engine=%q} %d\n", id, m.Spawned)

	fmt.Fprintf(rw, "# HELP blockwars_event_subscribers Connected notification subscribers.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_event_subscribers gauge\n")
	fmt.Fprintf(rw, "blockwars_event_subscribers{engine=%q} %d\n", id, rt.hub.Subscribers())

	fmt.Fprintf(rw, "# HELP blockwars_event_dropped_total Notifications dropped for slow subscribers.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_event_dropped_total counter\n")
	fmt.Fprintf(rw, "blockwars_event_dropped_total{engine=%q} %d\n", id, rt.hub.Dropped())

	fmt.Fprintf(rw, "# HELP blockwars_event_sent_total Notifications queued to subscribers.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_event_sent_total counter\n")
	fmt.Fprintf(rw, "blockwars_event_sent_total{engine=%q} %d\n", id, rt.hub.Sent())

	if rt.idx == nil {
		return
	}
	s := rt.idx.Stats()
	fmt.Fprintf(rw, "# HELP blockwars_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "blockwars_index_queue_depth{engine=%q} %d\n", id, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP blockwars_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE blockwars_index_dropped_total counter\n")
	fmt.Fprintf(rw, "blockwars_index_dropped_total{engine=%q,kind=%q} %d\n", id, "event", s.DropEventTotal)
	fmt.Fprintf(rw, "blockwars_index_dropped_total{engine=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "blockwars_index_dropped_total{engine=%q,kind=%q} %d\n", id, "snapshot_state", s.DropSnapshotStateTotal)
}

func (rt *serverRuntime) handleAdminState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	resp := struct {
		EngineID    string       `json:"engine_id"`
		NextSpawnAt string       `json:"next_spawn_at"`
		Metrics     game.Metrics `json:"metrics"`
	}{
		EngineID:    rt.eng.ID(),
		NextSpawnAt: rt.eng.NextSpawnAt().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Metrics:     rt.eng.Metrics(),
	}
	_ = json.NewEncoder(rw).Encode(resp)
}

func (rt *serverRuntime) handleAdminSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	snap := rt.eng.ExportSnapshot()
	path, err := rt.persistSnapshot(snap)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "seq": snap.Header.Seq, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seq": snap.Header.Seq, "path": path})
}

// handleAdminSpawn drops a batch into the arena now. The regular spawn window is left alone.
func (rt *serverRuntime) handleAdminSpawn(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	spawned := rt.eng.ForceSpawn()
	rt.logger.Printf("admin spawn: %d blocks", len(spawned))
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]any{
		"ok":        true,
		"spawned":   game.BlocksWire(spawned),
		"pool_size": len(rt.eng.Pool()),
	})
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best
}
