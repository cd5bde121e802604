package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "blockwars.gg/internal/persistence/log"
	"blockwars.gg/internal/persistence/snapshot"
	"blockwars.gg/internal/protocol"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "spawn":
			spawnCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func engineDir(dataDir, engineID string) string {
	return filepath.Join(dataDir, "engines", engineID)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "engines")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fmt.Println(describeEngine(filepath.Join(base, e.Name()), time.Now()))
	}
}

// describeEngine is one human-readable line about an engine data dir.
func describeEngine(dir string, now time.Time) string {
	name := filepath.Base(dir)
	path := latestSnapshot(dir)
	if path == "" {
		return name + "\tno snapshots"
	}
	st, err := os.Stat(path)
	if err != nil {
		return name + "\t" + err.Error()
	}
	h, err := snapshot.ReadHeader(path)
	if err != nil {
		return fmt.Sprintf("%s\t%s\t%s", name, filepath.Base(path), err)
	}
	return fmt.Sprintf("%s\tseq=%s\t%s\t%s",
		name, humanize.Comma(int64(h.Seq)), humanize.Bytes(uint64(st.Size())),
		humanize.RelTime(time.UnixMilli(h.SavedAt), now, "ago", "from now"))
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	engineID := fs.String("engine", "", "engine id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	top := fs.Int("top", 10, "players to show")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*engineID) == "" {
			fmt.Fprintln(os.Stderr, "missing -engine or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(engineDir(*dataDir, *engineID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Print(renderSummary(summarize(snap, *top)))
}

type playerLine struct {
	ID         string
	Coins      int64
	MoneyMilli int64
	Level      int
	Blocks     int
	Value      int64
}

type snapshotSummary struct {
	EngineID    string
	Seq         uint64
	SavedAt     time.Time
	NextSpawnAt time.Time
	Pool        int
	Tombstones  int
	Players     int
	Counters    snapshot.CountersV1
	Top         []playerLine
}

func summarize(snap snapshot.SnapshotV1, top int) snapshotSummary {
	s := snapshotSummary{
		EngineID:    snap.Header.EngineID,
		Seq:         snap.Header.Seq,
		SavedAt:     time.UnixMilli(snap.Header.SavedAt).UTC(),
		NextSpawnAt: snap.NextSpawnAt,
		Pool:        len(snap.Pool),
		Tombstones:  len(snap.Tombstones),
		Players:     len(snap.Players),
		Counters:    snap.Counters,
	}
	for _, p := range snap.Players {
		l := playerLine{ID: p.ID, Coins: p.Coins, MoneyMilli: p.MoneyMilli, Level: p.Level, Blocks: len(p.OwnedBlocks)}
		for _, b := range p.OwnedBlocks {
			l.Value += b.Value
		}
		s.Top = append(s.Top, l)
	}
	sort.Slice(s.Top, func(i, j int) bool {
		if s.Top[i].Coins != s.Top[j].Coins {
			return s.Top[i].Coins > s.Top[j].Coins
		}
		return s.Top[i].ID < s.Top[j].ID
	})
	if top >= 0 && len(s.Top) > top {
		s.Top = s.Top[:top]
	}
	return s
}

func renderSummary(s snapshotSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine=%s seq=%s saved=%s next_spawn=%s\n",
		s.EngineID, humanize.Comma(int64(s.Seq)), s.SavedAt.Format(time.RFC3339), s.NextSpawnAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "players=%s pool=%d tombstones=%s\n",
		humanize.Comma(int64(s.Players)), s.Pool, humanize.Comma(int64(s.Tombstones)))
	c := s.Counters
	fmt.Fprintf(&b, "claims=%s purchases=%s steals=%s/%s sells=%s spawned=%s\n",
		humanize.Comma(int64(c.Claims)), humanize.Comma(int64(c.Purchases)),
		humanize.Comma(int64(c.StealSuccesses)), humanize.Comma(int64(c.StealAttempts)),
		humanize.Comma(int64(c.Sells)), humanize.Comma(int64(c.Spawned)))
	for i, p := range s.Top {
		fmt.Fprintf(&b, "%2d. %-20s coins=%s money=%s lvl=%d blocks=%d value=%s\n",
			i+1, p.ID, humanize.Comma(p.Coins), humanize.CommafWithDigits(float64(p.MoneyMilli)/1000, 3),
			p.Level, p.Blocks, humanize.Comma(p.Value))
	}
	return b.String()
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	engineID := fs.String("engine", "", "engine id")
	player := fs.String("player", "", "only events involving this player")
	typ := fs.String("type", "", "only this event type (e.g. STEAL_ATTEMPT)")
	limit := fs.Int("limit", 50, "newest N events")
	_ = fs.Parse(args)

	if strings.TrimSpace(*engineID) == "" {
		fmt.Fprintln(os.Stderr, "missing -engine")
		os.Exit(2)
	}
	evs, err := tailEvents(engineDir(*dataDir, *engineID), *player, strings.ToUpper(*typ), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	for _, ev := range evs {
		printJSON(ev)
	}
}

// tailEvents returns the newest limit matching events in log order.
func tailEvents(dir, player, typ string, limit int) ([]protocol.EventMsg, error) {
	paths, err := persistlog.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []protocol.EventMsg
	for _, p := range paths {
		err := persistlog.ReadEvents(p, func(ev protocol.EventMsg) bool {
			if typ != "" && ev.Event != typ {
				return true
			}
			if player != "" && ev.PlayerID != player && ev.TargetID != player {
				return true
			}
			out = append(out, ev)
			if limit > 0 && len(out) > 2*limit {
				out = append(out[:0], out[len(out)-limit:]...)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func latestSnapshot(dir string) string {
	dir = filepath.Join(dir, "snapshots")
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
