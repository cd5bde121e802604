package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	EngineID string `json:"engine_id"`
	// Seq is the engine event sequence at export time.
	Seq     uint64 `json:"seq"`
	SavedAt int64  `json:"saved_at_unix_ms"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64  `json:"seed"`
	CatalogDigest string `json:"catalog_digest"`
	TuningVersion string `json:"tuning_version,omitempty"`

	NextSpawnAt time.Time     `json:"next_spawn_at"`
	Pool        []BlockV1     `json:"pool"`
	Tombstones  []TombstoneV1 `json:"tombstones,omitempty"`
	Players     []PlayerV1    `json:"players"`

	Counters CountersV1 `json:"counters"`
}

type BlockV1 struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Rarity    string    `json:"rarity"`
	Value     int64     `json:"value"`
	Power     int       `json:"power"`
	Defense   int       `json:"defense"`
	SpawnedAt time.Time `json:"spawned_at"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Stealable bool      `json:"stealable"`
	Chain     string    `json:"chain,omitempty"`
}

type TombstoneV1 struct {
	BlockID string    `json:"block_id"`
	Winner  string    `json:"winner,omitempty"`
	At      time.Time `json:"at"`
	Sold    bool      `json:"sold,omitempty"`
}

type PlayerV1 struct {
	ID               string    `json:"id"`
	Coins            int64     `json:"coins"`
	MoneyMilli       int64     `json:"money_milli"`
	Level            int       `json:"level"`
	Experience       int64     `json:"experience"`
	AttackPower      int       `json:"attack_power"`
	DefenseStrength  int       `json:"defense_strength"`
	OwnedBlocks      []BlockV1 `json:"owned_blocks"`
	LastSettledAt    time.Time `json:"last_settled_at"`
	AccrualRemainder int64     `json:"accrual_remainder,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Version          uint64    `json:"version"`
}

type CountersV1 struct {
	Claims         uint64 `json:"claims"`
	Purchases      uint64 `json:"purchases"`
	StealAttempts  uint64 `json:"steal_attempts"`
	StealSuccesses uint64 `json:"steal_successes"`
	Sells          uint64 `json:"sells"`
	Spawned        uint64 `json:"spawned"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, all zstd-compressed.
// The file is written to a temp path and renamed so readers never see a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; the gob body carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// FileName is the canonical snapshot file name for an event sequence.
func FileName(seq uint64) string {
	return fmt.Sprintf("%012d.snap.zst", seq)
}
