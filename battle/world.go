// Defines World, the authoritative registry of units on the square grid.
// Units are registered by the engine, placed and mutated only through the
// World operations below, and moved to the dead list by Cull.

package battle

import (
	"fmt"
	"math/rand"
)

// UnitID is a 16-bit unit identifier, rendered as 4 lowercase hex digits.
type UnitID uint16

func (id UnitID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// Allocated ids live in [minUnitID, maxUnitID). 0000 is the engine's own id.
const (
	minUnitID  = 0x0001
	maxUnitID  = 0xFFFF
	idAttempts = 64
)

// Position is a grid coordinate. Y grows upward.
type Position struct {
	X int
	Y int
}

// NoPosition is the sentinel location of unplaced or unknown units.
var NoPosition = Position{X: -1, Y: -1}

// Add returns p translated by o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Unit is a single combatant.
type Unit struct {
	ID         UnitID
	Controller string   // name of the Controller the unit's actions come from
	Pos        Position // NoPosition until spawned
	HP         int
	LastAction Action
	Forfeited  bool // controller channel failed; culled at end of round
}

// Placed reports whether the unit has been spawned onto the grid.
func (u *Unit) Placed() bool {
	return u.Pos != NoPosition
}

func (u Unit) String() string {
	return fmt.Sprintf("Unit: (ID: %s, Controller: %s, Pos: %s, HP: %d)", u.ID, u.Controller, u.Pos, u.HP)
}

// World holds the grid and every unit of one match.
//
// Thread-safety: NOT thread-safe. Owned by the engine goroutine.
type World struct {
	Side int     // grid side length; valid coordinates are [0, Side)
	Live []*Unit // live units in registration order
	Dead []*Unit // culled units in death order
	Turn int     // completed running rounds

	ids *rand.Rand
}

// NewWorld creates an empty world. ids drives AllocateID.
func NewWorld(side int, ids *rand.Rand) *World {
	if ids == nil {
		ids = rand.New(rand.NewSource(0))
	}
	return &World{
		Side: side,
		Live: make([]*Unit, 0),
		Dead: make([]*Unit, 0),
		ids:  ids,
	}
}

func (w *World) lookup(id UnitID) *Unit {
	for _, u := range w.Live {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Unit returns the live unit with the given id.
func (w *World) Unit(id UnitID) (*Unit, bool) {
	u := w.lookup(id)
	return u, u != nil
}

// InBounds reports whether pos lies on the grid.
func (w *World) InBounds(pos Position) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < w.Side && pos.Y < w.Side
}

// IsOccupied reports whether a live unit stands on pos.
func (w *World) IsOccupied(pos Position) bool {
	_, ok := w.UnitAt(pos)
	return ok
}

// UnitAt returns the id of the live unit on pos.
func (w *World) UnitAt(pos Position) (UnitID, bool) {
	if pos == NoPosition {
		return 0, false
	}
	for _, u := range w.Live {
		if u.Pos == pos {
			return u.ID, true
		}
	}
	return 0, false
}

// ControllerOf returns the controller name of a live unit.
func (w *World) ControllerOf(id UnitID) (string, error) {
	u := w.lookup(id)
	if u == nil {
		return "", &UnknownUnitError{ID: id}
	}
	return u.Controller, nil
}

// LocationOf returns the position of a live unit, or NoPosition.
func (w *World) LocationOf(id UnitID) Position {
	u := w.lookup(id)
	if u == nil {
		return NoPosition
	}
	return u.Pos
}

// SetLocation moves a live unit to pos without any bounds or occupancy check.
func (w *World) SetLocation(id UnitID, pos Position) error {
	u := w.lookup(id)
	if u == nil {
		return &UnknownUnitError{ID: id}
	}
	u.Pos = pos
	return nil
}

// AdjustHP adds delta to a live unit's HP and returns the new value.
func (w *World) AdjustHP(id UnitID, delta int) (int, error) {
	u := w.lookup(id)
	if u == nil {
		return 0, &UnknownUnitError{ID: id}
	}
	u.HP += delta
	return u.HP, nil
}

// AllocateID returns an id unused by any live unit. It samples uniformly a
// bounded number of times, then probes linearly from a random start, so
// it always terminates.
func (w *World) AllocateID() (UnitID, error) {
	span := maxUnitID - minUnitID
	if len(w.Live) >= span {
		return 0, ErrIDSpaceExhausted
	}
	for i := 0; i < idAttempts; i++ {
		id := UnitID(minUnitID + w.ids.Intn(span))
		if w.lookup(id) == nil {
			return id, nil
		}
	}
	start := w.ids.Intn(span)
	for i := 0; i < span; i++ {
		id := UnitID(minUnitID + (start+i)%span)
		if w.lookup(id) == nil {
			return id, nil
		}
	}
	return 0, ErrIDSpaceExhausted
}

// AddUnit registers an unplaced unit. The unit must later be spawned.
func (w *World) AddUnit(id UnitID, controller string, hp int) (*Unit, error) {
	if id < minUnitID || id >= maxUnitID {
		return nil, fmt.Errorf("unit id %s outside allocatable range", id)
	}
	if w.lookup(id) != nil {
		return nil, fmt.Errorf("unit id %s already live", id)
	}
	u := &Unit{
		ID:         id,
		Controller: controller,
		Pos:        NoPosition,
		HP:         hp,
		LastAction: Delay{Unit: id},
	}
	w.Live = append(w.Live, u)
	return u, nil
}

// Forfeit marks a live unit as out of the match. Its HP drops to 0 and
// the next Cull removes it.
func (w *World) Forfeit(id UnitID) error {
	u := w.lookup(id)
	if u == nil {
		return &UnknownUnitError{ID: id}
	}
	u.Forfeited = true
	if u.HP > 0 {
		u.HP = 0
	}
	return nil
}

// Cull moves every live unit with HP <= 0 to the dead list and returns them.
func (w *World) Cull() []*Unit {
	survivors := make([]*Unit, 0, len(w.Live))
	var culled []*Unit
	for _, u := range w.Live {
		if u.HP <= 0 {
			culled = append(culled, u)
			continue
		}
		survivors = append(survivors, u)
	}
	w.Live = survivors
	w.Dead = append(w.Dead, culled...)
	return culled
}

// LiveCount returns the number of live units.
func (w *World) LiveCount() int {
	return len(w.Live)
}

// CountByController returns live unit counts keyed by controller name.
func (w *World) CountByController() map[string]int {
	counts := make(map[string]int)
	for _, u := range w.Live {
		counts[u.Controller]++
	}
	return counts
}
