package battle

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_Queries(t *testing.T) {
	// GIVEN two placed units
	w := newTestWorld(t, 10,
		&Unit{ID: 1, Controller: "red", Pos: Position{2, 3}, HP: 1},
		&Unit{ID: 2, Controller: "blue", Pos: Position{4, 4}, HP: 2},
	)

	// THEN lookups reflect their positions and owners
	assert.True(t, w.IsOccupied(Position{2, 3}))
	assert.False(t, w.IsOccupied(Position{3, 2}))
	id, ok := w.UnitAt(Position{4, 4})
	assert.True(t, ok)
	assert.Equal(t, UnitID(2), id)
	_, ok = w.UnitAt(Position{0, 0})
	assert.False(t, ok)

	owner, err := w.ControllerOf(1)
	require.NoError(t, err)
	assert.Equal(t, "red", owner)
	assert.Equal(t, Position{4, 4}, w.LocationOf(2))
	assert.Equal(t, map[string]int{"red": 1, "blue": 1}, w.CountByController())
}

func TestWorld_UnknownUnitSentinels(t *testing.T) {
	w := newTestWorld(t, 10)

	_, err := w.ControllerOf(9)
	assert.True(t, errors.Is(err, ErrUnknownUnit))
	var ue *UnknownUnitError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, UnitID(9), ue.ID)

	assert.Equal(t, NoPosition, w.LocationOf(9))
	assert.ErrorIs(t, w.SetLocation(9, Position{1, 1}), ErrUnknownUnit)
	_, err = w.AdjustHP(9, -1)
	assert.ErrorIs(t, err, ErrUnknownUnit)
	assert.ErrorIs(t, w.Forfeit(9), ErrUnknownUnit)
}

func TestWorld_UnplacedUnitsOccupyNothing(t *testing.T) {
	w := NewWorld(4, nil)
	u, err := w.AddUnit(5, "red", 1)
	require.NoError(t, err)
	assert.False(t, u.Placed())
	assert.Equal(t, NoPosition, w.LocationOf(5))
	assert.False(t, w.IsOccupied(NoPosition))
	assert.Equal(t, Delay{Unit: 5}, u.LastAction)
}

func TestWorld_AddUnitRejectsBadIDs(t *testing.T) {
	w := NewWorld(4, nil)
	_, err := w.AddUnit(0, "red", 1)
	assert.Error(t, err, "0000 is reserved")
	_, err = w.AddUnit(0xFFFF, "red", 1)
	assert.Error(t, err)
	_, err = w.AddUnit(7, "red", 1)
	require.NoError(t, err)
	_, err = w.AddUnit(7, "blue", 1)
	assert.Error(t, err, "duplicate live id")
}

func TestWorld_AdjustHP(t *testing.T) {
	w := newTestWorld(t, 4, &Unit{ID: 1, Controller: "red", Pos: Position{0, 0}, HP: 2})
	hp, err := w.AdjustHP(1, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, hp)
	hp, err = w.AdjustHP(1, -3)
	require.NoError(t, err)
	assert.Equal(t, -2, hp)
	assert.Equal(t, 1, w.LiveCount(), "HP <= 0 units stay live until Cull")
}

func TestWorld_CullMovesDeadOnce(t *testing.T) {
	// GIVEN one healthy, one dead and one forfeited unit
	w := newTestWorld(t, 4,
		&Unit{ID: 1, Controller: "red", Pos: Position{0, 0}, HP: 1},
		&Unit{ID: 2, Controller: "blue", Pos: Position{1, 0}, HP: 0},
		&Unit{ID: 3, Controller: "blue", Pos: Position{2, 0}, HP: 3},
	)
	require.NoError(t, w.Forfeit(3))

	// WHEN culling twice
	culled := w.Cull()
	again := w.Cull()

	// THEN dead units move over once, in live order
	require.Len(t, culled, 2)
	assert.Equal(t, UnitID(2), culled[0].ID)
	assert.Equal(t, UnitID(3), culled[1].ID)
	assert.True(t, culled[1].Forfeited)
	assert.Empty(t, again)
	assert.Equal(t, 1, w.LiveCount())
	assert.Len(t, w.Dead, 2)
	_, ok := w.Unit(2)
	assert.False(t, ok, "dead units are not resurrected by lookups")
}

func TestWorld_AllocateID_UniqueAmongLive(t *testing.T) {
	// GIVEN a world whose id stream is seeded
	w := NewWorld(10, rand.New(rand.NewSource(7)))
	seen := make(map[UnitID]bool)

	// WHEN allocating and registering many ids
	for i := 0; i < 500; i++ {
		id, err := w.AllocateID()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		require.NotEqual(t, UnitID(0), id)
		seen[id] = true
		_, err = w.AddUnit(id, "red", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 500, w.LiveCount())
}

func TestWorld_AllocateID_Deterministic(t *testing.T) {
	a := NewWorld(10, rand.New(rand.NewSource(99)))
	b := NewWorld(10, rand.New(rand.NewSource(99)))
	for i := 0; i < 5; i++ {
		idA, err := a.AllocateID()
		require.NoError(t, err)
		idB, err := b.AllocateID()
		require.NoError(t, err)
		assert.Equal(t, idA, idB)
	}
}

func TestWorld_AllocateID_Exhausted(t *testing.T) {
	w := NewWorld(10, nil)
	for id := minUnitID; id < maxUnitID; id++ {
		w.Live = append(w.Live, &Unit{ID: UnitID(id), Pos: NoPosition})
	}
	_, err := w.AllocateID()
	assert.ErrorIs(t, err, ErrIDSpaceExhausted)
}

func TestUnitID_String(t *testing.T) {
	assert.Equal(t, "0001", UnitID(1).String())
	assert.Equal(t, "beef", UnitID(0xbeef).String())
}
