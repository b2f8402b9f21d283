package battle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zgrow/robobattler/battle/trace"
)

// replyFunc produces the bot's answer for id. It may block until ctx is done.
type replyFunc func(ctx context.Context, id UnitID) (string, error)

// scriptedController is an in-package Controller whose replies come from a
// function. It records every id and result it sees.
type scriptedController struct {
	name      string
	reply     replyFunc
	sendIDErr error

	pending UnitID
	ids     []UnitID
	results []string
	closed  int
}

func newScripted(name string, reply replyFunc) *scriptedController {
	return &scriptedController{name: name, reply: reply}
}

func (c *scriptedController) Name() string { return c.name }

func (c *scriptedController) SendID(ctx context.Context, id UnitID) error {
	if c.sendIDErr != nil {
		return &TransportError{Controller: c.name, Op: "send-id", Err: c.sendIDErr}
	}
	c.pending = id
	c.ids = append(c.ids, id)
	return nil
}

func (c *scriptedController) ReceiveBytecode(ctx context.Context) (string, error) {
	return c.reply(ctx, c.pending)
}

func (c *scriptedController) SendResult(ctx context.Context, result string) error {
	c.results = append(c.results, result)
	return nil
}

func (c *scriptedController) Close() error {
	c.closed++
	return nil
}

// replyWith answers every request with the same kind and parameter digits.
func replyWith(kind ActionKind, params string) replyFunc {
	return func(_ context.Context, id UnitID) (string, error) {
		return fmt.Sprintf("0x%04x%s%s", uint16(kind), id, params), nil
	}
}

func replyDelay() replyFunc { return replyWith(KindDelay, "00") }

func replyRaw(raw string) replyFunc {
	return func(context.Context, UnitID) (string, error) { return raw, nil }
}

// replyNever blocks until the request deadline.
func replyNever() replyFunc {
	return func(ctx context.Context, _ UnitID) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

var errBrokenPipe = errors.New("broken pipe")

// testConfig is a small, fast match with a fixed formation.
func testConfig(maxRounds int, placements ...Placement) MatchConfig {
	cfg := DefaultMatchConfig()
	cfg.GridSide = 8
	cfg.MaxRounds = maxRounds
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.Placements = placements
	if len(placements) > 0 {
		cfg.ArmySize = len(placements) / 2
	}
	return cfg
}

// newTestEngine builds an engine recording into a fresh trace.
func newTestEngine(t *testing.T, cfg MatchConfig, sides ...Controller) (*Engine, *trace.MatchTrace) {
	t.Helper()
	mt := trace.NewMatchTrace(trace.TraceConfig{Level: trace.TraceLevelActions}, trace.Header{})
	e, err := NewEngine(cfg, sides, WithRecorder(mt))
	require.NoError(t, err)
	return e, mt
}

// runMatch runs e to completion with a generous deadline.
func runMatch(t *testing.T, e *Engine) *MatchSummary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary, err := e.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

// recordsWith filters records by outcome.
func recordsWith(mt *trace.MatchTrace, outcome trace.Outcome) []trace.ActionRecord {
	var out []trace.ActionRecord
	for _, r := range mt.Records {
		if r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// newTestWorld returns a world with units already placed, in the given order.
func newTestWorld(t *testing.T, side int, units ...*Unit) *World {
	t.Helper()
	w := NewWorld(side, nil)
	for _, u := range units {
		added, err := w.AddUnit(u.ID, u.Controller, u.HP)
		require.NoError(t, err)
		added.Pos = u.Pos
	}
	return w
}
