package battle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Placement pins one starting unit of a side to a grid cell.
type Placement struct {
	Side int `yaml:"side"` // index into the engine's controller list
	X    int `yaml:"x"`
	Y    int `yaml:"y"`
}

// MatchConfig groups every tunable of a match. Loadable from YAML.
type MatchConfig struct {
	GridSide       int           `yaml:"grid_side"`       // side length of the square grid
	StartingHP     int           `yaml:"starting_hp"`     // HP of every starting unit
	ArmySize       int           `yaml:"army_size"`       // starting units per side
	MaxRounds      int           `yaml:"max_rounds"`      // running rounds before the match ends
	RequestTimeout time.Duration `yaml:"request_timeout"` // per-unit exchange budget; expiry means Delay
	Seed           int64         `yaml:"seed"`            // MatchKey for ids and placement
	Placements     []Placement   `yaml:"placements"`      // optional fixed formation
}

// Stock match settings.
const (
	DefaultGridSide       = 10
	DefaultStartingHP     = 1
	DefaultArmySize       = 5
	DefaultMaxRounds      = 10
	DefaultRequestTimeout = 2 * time.Second

	// maxGridSide keeps every coordinate expressible as one parameter byte.
	maxGridSide = 256
)

// DefaultMatchConfig returns the stock 10x10, five-a-side, ten-round match.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		GridSide:       DefaultGridSide,
		StartingHP:     DefaultStartingHP,
		ArmySize:       DefaultArmySize,
		MaxRounds:      DefaultMaxRounds,
		RequestTimeout: DefaultRequestTimeout,
		Seed:           42,
	}
}

// LoadMatchConfig reads a YAML match file over the defaults. Unknown keys
// are errors so typos cannot silently fall back to defaults.
func LoadMatchConfig(path string) (MatchConfig, error) {
	cfg := DefaultMatchConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading match config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing match config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and the fixed formation, if any.
func (c MatchConfig) Validate() error {
	if c.GridSide < 2 || c.GridSide > maxGridSide {
		return fmt.Errorf("grid_side must be in [2, %d], got %d", maxGridSide, c.GridSide)
	}
	if c.StartingHP < 1 {
		return fmt.Errorf("starting_hp must be positive, got %d", c.StartingHP)
	}
	if c.ArmySize < 1 {
		return fmt.Errorf("army_size must be positive, got %d", c.ArmySize)
	}
	if half := c.GridSide * (c.GridSide / 2); c.ArmySize > half {
		return fmt.Errorf("army_size %d does not fit in half of a %dx%d grid", c.ArmySize, c.GridSide, c.GridSide)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must be non-negative, got %d", c.MaxRounds)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	seen := make(map[Position]bool, len(c.Placements))
	for i, p := range c.Placements {
		pos := Position{X: p.X, Y: p.Y}
		if p.Side < 0 {
			return fmt.Errorf("placements[%d]: side must be non-negative, got %d", i, p.Side)
		}
		if pos.X < 0 || pos.Y < 0 || pos.X >= c.GridSide || pos.Y >= c.GridSide {
			return fmt.Errorf("placements[%d]: %s is off the grid", i, pos)
		}
		if seen[pos] {
			return fmt.Errorf("placements[%d]: %s is used twice", i, pos)
		}
		seen[pos] = true
	}
	return nil
}
