package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Rarity string

const (
	Common    Rarity = "common"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
	Secret    Rarity = "secret"
)

// Rarities lists every tier in ascending order.
var Rarities = []Rarity{Common, Rare, Epic, Legendary, Secret}

// SpawnRarities are the tiers the arena hands out for free. Secret is purchase-only.
var SpawnRarities = []Rarity{Common, Rare, Epic, Legendary}

func ParseRarity(s string) (Rarity, bool) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Rarities {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// Rank orders tiers: common=0 .. secret=4. Unknown tiers rank -1.
func (r Rarity) Rank() int {
	for i, known := range Rarities {
		if r == known {
			return i
		}
	}
	return -1
}

type Catalogs struct {
	Blocks BlockCatalog
}

type BlockCatalog struct {
	// Types is sorted so uniform draws are reproducible for a given seed.
	Types []string
	// SpawnTypes are the types that can appear in the arena in at least one tier.
	SpawnTypes []string
	Defs       map[string]BlockArchetype
	Digest     string
}

type BlockArchetype struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	BaseValue   int64  `json:"base_value"`
	BasePower   int    `json:"base_power"`
	BaseDefense int    `json:"base_defense"`
	// Rarities restricts the tiers this archetype comes in. Empty means every tier.
	Rarities []Rarity `json:"rarities,omitempty"`
}

func (a BlockArchetype) Allows(r Rarity) bool {
	if len(a.Rarities) == 0 {
		return r.Rank() >= 0
	}
	for _, x := range a.Rarities {
		if x == r {
			return true
		}
	}
	return false
}

// SpawnRarities returns the free-spawn tiers this archetype allows, in rank order.
func (a BlockArchetype) SpawnRarities() []Rarity {
	if len(a.Rarities) == 0 {
		return SpawnRarities
	}
	out := make([]Rarity, 0, len(SpawnRarities))
	for _, r := range SpawnRarities {
		if a.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromArchetypes builds a catalog from in-memory definitions (tests, tools).
func FromArchetypes(defs []BlockArchetype) (*Catalogs, error) {
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, err
	}
	var c Catalogs
	if err := indexBlocks(raw, defs, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func (b BlockCatalog) Get(typ string) (BlockArchetype, bool) {
	d, ok := b.Defs[strings.ToUpper(strings.TrimSpace(typ))]
	return d, ok
}

// TypesFor lists the sorted types that come in rarity r.
func (b BlockCatalog) TypesFor(r Rarity) []string {
	out := make([]string, 0, len(b.Types))
	for _, t := range b.Types {
		if b.Defs[t].Allows(r) {
			out = append(out, t)
		}
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []BlockArchetype
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	if err := indexBlocks(raw, defs, out); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	return nil
}

func indexBlocks(raw []byte, defs []BlockArchetype, out *BlockCatalog) error {
	out.Digest = sha256Hex(raw)
	out.Defs = make(map[string]BlockArchetype, len(defs))
	for _, d := range defs {
		d.Type = strings.ToUpper(strings.TrimSpace(d.Type))
		if d.Type == "" {
			return fmt.Errorf("empty type")
		}
		if _, dup := out.Defs[d.Type]; dup {
			return fmt.Errorf("duplicate type %s", d.Type)
		}
		if d.BaseValue <= 0 {
			return fmt.Errorf("%s: base_value must be > 0", d.Type)
		}
		if d.DisplayName == "" {
			d.DisplayName = d.Type
		}
		rs, err := normalizeRarities(d.Rarities)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Type, err)
		}
		d.Rarities = rs
		out.Defs[d.Type] = d
	}
	if len(out.Defs) == 0 {
		return fmt.Errorf("no block archetypes")
	}
	out.Types = make([]string, 0, len(out.Defs))
	for t := range out.Defs {
		out.Types = append(out.Types, t)
	}
	sort.Strings(out.Types)
	out.SpawnTypes = make([]string, 0, len(out.Types))
	for _, t := range out.Types {
		if len(out.Defs[t].SpawnRarities()) > 0 {
			out.SpawnTypes = append(out.SpawnTypes, t)
		}
	}
	return nil
}

// normalizeRarities parses each tier, rejects unknown and repeated ones and
// returns them in rank order.
func normalizeRarities(in []Rarity) ([]Rarity, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := map[Rarity]bool{}
	out := make([]Rarity, 0, len(in))
	for _, raw := range in {
		r, ok := ParseRarity(string(raw))
		if !ok {
			return nil, fmt.Errorf("unknown rarity %q", raw)
		}
		if seen[r] {
			return nil, fmt.Errorf("rarity %s listed twice", r)
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out, nil
}
