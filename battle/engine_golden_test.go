package battle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgrow/robobattler/battle/internal/testutil"
)

// TestEngine_GoldenMatches replays scripted matches and compares the end
// state field by field.
func TestEngine_GoldenMatches(t *testing.T) {
	golden := testutil.LoadGoldenMatches(t)
	require.NotEmpty(t, golden.Matches)

	for _, gm := range golden.Matches {
		gm := gm
		t.Run(gm.Name, func(t *testing.T) {
			// GIVEN the fixture's formation and scripts
			cfg := DefaultMatchConfig()
			cfg.GridSide = gm.GridSide
			cfg.StartingHP = gm.StartingHP
			cfg.MaxRounds = gm.MaxRounds
			cfg.Seed = gm.Seed
			cfg.ArmySize = len(gm.Placements) / len(gm.Sides)
			for _, p := range gm.Placements {
				cfg.Placements = append(cfg.Placements, Placement{Side: p.Side, X: p.X, Y: p.Y})
			}
			sides := make([]Controller, len(gm.Sides))
			for i, name := range gm.Sides {
				name := name
				calls := 0
				sides[i] = newScripted(name, func(_ context.Context, id UnitID) (string, error) {
					reply := gm.Reply(name, calls, id.String())
					calls++
					return reply, nil
				})
			}
			e, mt := newTestEngine(t, cfg, sides...)

			// WHEN the match runs to completion
			summary := runMatch(t, e)

			// THEN the outcome matches the fixture
			want := gm.Expected
			assert.Equal(t, want.Turns, summary.Turns, "turns")
			assert.Equal(t, want.Rounds, summary.Rounds, "rounds")
			assert.Equal(t, want.Reason, string(summary.Reason), "reason")
			assert.Equal(t, want.Winner, summary.Winner, "winner")
			assert.Equal(t, want.Survivors, summary.Survivors, "survivors")
			assert.Len(t, mt.Records, want.Records, "turn log records")
			require.Len(t, summary.Live, len(want.Live), "live units")
			for i, u := range want.Live {
				got := summary.Live[i]
				assert.Equal(t, u.Controller, got.Controller, "live[%d] controller", i)
				assert.Equal(t, Position{u.X, u.Y}, got.Pos, "live[%d] position", i)
				assert.Equal(t, u.HP, got.HP, "live[%d] hp", i)
			}
			assert.Equal(t, ModeShutdown, e.Mode())
		})
	}
}
