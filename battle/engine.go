// Defines Engine, the referee that drives a match through its Mode state
// machine and runs the per-round request/resolve/cull cycle.

package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/zgrow/robobattler/battle/trace"
)

// Mode is the lifecycle state of an Engine.
type Mode int

const (
	ModeOffline Mode = iota
	ModeStartup
	ModeRunning
	ModePaused
	ModeFinished
	ModeShutdown
)

var modeNames = []string{"offline", "startup", "running", "paused", "finished", "shutdown"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// EndReason records why a match left the Running mode.
type EndReason string

const (
	EndMaxRounds    EndReason = "max-rounds"
	EndLastStanding EndReason = "last-standing"
	EndCancelled    EndReason = "cancelled"
)

// Recorder receives one record per resolved action and per death.
// *trace.MatchTrace satisfies it.
type Recorder interface {
	RecordAction(record trace.ActionRecord)
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRecorder attaches a turn log recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRNG replaces the RNG derived from MatchConfig.Seed.
func WithRNG(rng *PartitionedRNG) Option {
	return func(e *Engine) { e.rng = rng }
}

type controlRequest int

const (
	pauseRequest controlRequest = iota + 1
	resumeRequest
)

// Engine referees one match. The zero value is Offline and cannot run.
//
// Thread-safety: Run must be called from a single goroutine. Pause and
// Resume may be called from any goroutine.
type Engine struct {
	Config MatchConfig
	World  *World

	mode     Mode
	prevMode Mode

	controllers  []Controller
	byName       map[string]Controller
	disconnected map[string]error
	// overdue counts, per controller, replies still owed for requests
	// that timed out. A reply naming such a unit is discarded.
	overdue map[string]map[UnitID]int

	rng      *PartitionedRNG
	recorder Recorder
	control  chan controlRequest

	// roundLog holds the actions resolved so far in the current round.
	roundLog  []Action
	forfeits  []Forfeit
	rounds    int
	endReason EndReason
}

// NewEngine validates cfg, binds one controller per side and leaves the
// engine in Startup. Units are placed when Run begins.
func NewEngine(cfg MatchConfig, sides []Controller, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sides) < 2 {
		return nil, fmt.Errorf("a match needs at least 2 controllers, got %d", len(sides))
	}
	if band := cfg.GridSide / len(sides); band < 1 || cfg.ArmySize > band*cfg.GridSide {
		return nil, fmt.Errorf("army_size %d does not fit %d sides on a %dx%d grid", cfg.ArmySize, len(sides), cfg.GridSide, cfg.GridSide)
	}
	byName := make(map[string]Controller, len(sides))
	for i, c := range sides {
		if c == nil {
			return nil, fmt.Errorf("controller %d is nil", i)
		}
		if _, dup := byName[c.Name()]; dup {
			return nil, fmt.Errorf("controller name %q used twice", c.Name())
		}
		byName[c.Name()] = c
	}
	if len(cfg.Placements) > 0 {
		perSide := make([]int, len(sides))
		for i, p := range cfg.Placements {
			if p.Side >= len(sides) {
				return nil, fmt.Errorf("placements[%d]: side %d has no controller", i, p.Side)
			}
			perSide[p.Side]++
		}
		for side, n := range perSide {
			if n != cfg.ArmySize {
				return nil, fmt.Errorf("placements: side %d has %d units, army_size is %d", side, n, cfg.ArmySize)
			}
		}
	}

	e := &Engine{
		Config:       cfg,
		controllers:  sides,
		byName:       byName,
		disconnected: make(map[string]error),
		overdue:      make(map[string]map[UnitID]int),
		control:      make(chan controlRequest, 4),
		roundLog:     make([]Action, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = NewPartitionedRNG(MatchKey(cfg.Seed))
	}
	e.World = NewWorld(cfg.GridSide, e.rng.ForSubsystem(SubsystemUnitIDs))
	logrus.Debugf("initializing game engine: %d sides, %dx%d grid", len(sides), cfg.GridSide, cfg.GridSide)
	e.setMode(ModeStartup)
	return e, nil
}

// Mode returns the current lifecycle state.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Rounds returns the number of rounds executed, setup included.
func (e *Engine) Rounds() int {
	return e.rounds
}

// RoundLog returns the actions resolved so far in the current round.
func (e *Engine) RoundLog() []Action {
	return e.roundLog
}

func (e *Engine) setMode(m Mode) {
	e.prevMode = e.mode
	e.mode = m
	logrus.Debugf("engine mode %s -> %s", e.prevMode, e.mode)
}

// Pause asks a running match to stop between rounds.
func (e *Engine) Pause() {
	e.requestControl(pauseRequest)
}

// Resume continues a paused match.
func (e *Engine) Resume() {
	e.requestControl(resumeRequest)
}

func (e *Engine) requestControl(req controlRequest) {
	if e.control == nil {
		return
	}
	select {
	case e.control <- req:
	default:
		logrus.Warnf("control request %d dropped: queue full", req)
	}
}

// Run drives the match until Shutdown and returns its summary. Cancelling
// ctx ends the match early; a summary is still produced.
func (e *Engine) Run(ctx context.Context) (*MatchSummary, error) {
	switch e.mode {
	case ModeOffline:
		logrus.Errorf("engine is offline")
		return nil, ErrEngineOffline
	case ModeShutdown:
		logrus.Errorf("engine already shut down")
		return nil, fmt.Errorf("%w: run while %s", ErrInvalidTransition, e.mode)
	}

	for {
		switch e.mode {
		case ModeStartup:
			logrus.Info("starting up match")
			if err := e.setup(); err != nil {
				logrus.Errorf("setup failed: %v", err)
				e.closeControllers()
				e.setMode(ModeShutdown)
				return nil, err
			}
			e.setMode(ModeRunning)

		case ModeRunning:
			if e.takeControl(pauseRequest) {
				e.setMode(ModePaused)
				continue
			}
			if ctx.Err() != nil {
				e.endReason = EndCancelled
				e.setMode(ModeFinished)
				continue
			}
			if over, reason := e.isOver(); over {
				e.endReason = reason
				e.setMode(ModeFinished)
				continue
			}
			if err := e.iterate(ctx); err != nil {
				return nil, err
			}

		case ModePaused:
			logrus.Info("match paused")
			select {
			case req := <-e.control:
				if req == resumeRequest {
					logrus.Info("match resumed")
					e.setMode(ModeRunning)
				}
			case <-ctx.Done():
				e.endReason = EndCancelled
				e.setMode(ModeFinished)
			}

		case ModeFinished:
			logrus.Infof("the battle has ended after %d turns (%s)", e.World.Turn, e.endReason)
			e.closeControllers()
			e.setMode(ModeShutdown)

		case ModeShutdown:
			logrus.Info("the game engine has shut down")
			return e.Summary(), nil

		default:
			logrus.Errorf("engine in unexpected mode %s", e.mode)
			return nil, fmt.Errorf("%w: mode %s", ErrInvalidTransition, e.mode)
		}
	}
}

// takeControl consumes a pending control request of the wanted kind
// without blocking. Other requests are discarded.
func (e *Engine) takeControl(want controlRequest) bool {
	for {
		select {
		case req := <-e.control:
			if req == want {
				return true
			}
		default:
			return false
		}
	}
}

func (e *Engine) isOver() (bool, EndReason) {
	if e.World.Turn >= e.Config.MaxRounds {
		return true, EndMaxRounds
	}
	if e.World.LiveCount() < 2 {
		return true, EndLastStanding
	}
	return false, ""
}

// setup allocates and spawns every side's starting army. Units are
// registered alternating between sides so turn order interleaves them.
func (e *Engine) setup() error {
	e.rounds++
	placer := e.rng.ForSubsystem(SubsystemPlacement)
	formations := make([][]Position, len(e.controllers))
	for side := range e.controllers {
		formations[side] = e.startingPositions(side, placer)
	}

	for i := 0; i < e.Config.ArmySize; i++ {
		for side, ctrl := range e.controllers {
			id, err := e.World.AllocateID()
			if err != nil {
				return fmt.Errorf("allocating unit for %s: %w", ctrl.Name(), err)
			}
			u, err := e.World.AddUnit(id, ctrl.Name(), e.Config.StartingHP)
			if err != nil {
				return err
			}
			spawn := Spawn{Unit: id, At: formations[side][i]}
			result := Resolve(e.World, spawn)
			u.LastAction = spawn
			logrus.Debugf("U-%s:%s created at %s", id, ctrl.Name(), spawn.At)
			e.record(0, u, spawn, result, trace.OutcomeSetup, "")
		}
	}
	return nil
}

// startingPositions returns ArmySize cells for side: the configured
// formation if any, otherwise random cells from the side's band of rows.
func (e *Engine) startingPositions(side int, placer *rand.Rand) []Position {
	if len(e.Config.Placements) > 0 {
		var out []Position
		for _, p := range e.Config.Placements {
			if p.Side == side {
				out = append(out, Position{X: p.X, Y: p.Y})
			}
		}
		return out
	}

	band := e.Config.GridSide / len(e.controllers)
	cells := make([]Position, 0, band*e.Config.GridSide)
	for y := side * band; y < (side+1)*band; y++ {
		for x := 0; x < e.Config.GridSide; x++ {
			cells = append(cells, Position{X: x, Y: y})
		}
	}
	placer.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
	return cells[:e.Config.ArmySize]
}

// iterate performs a single running round.
func (e *Engine) iterate(ctx context.Context) error {
	if e.mode != ModeRunning {
		logrus.Errorf("attempting to iterate while %s", e.mode)
		return fmt.Errorf("%w: iterate while %s", ErrInvalidTransition, e.mode)
	}
	e.rounds++
	turn := e.World.Turn + 1
	logrus.Infof("[turn %03d] %d units acting", turn, e.World.LiveCount())

	// Units killed earlier in the round still take their queued turn.
	order := make([]*Unit, len(e.World.Live))
	copy(order, e.World.Live)
	for i, u := range order {
		if ctx.Err() != nil {
			logrus.Infof("[turn %03d] cancelled; %d units did not act", turn, len(order)-i)
			break
		}
		e.takeTurn(ctx, turn, u)
	}

	for _, u := range e.World.Cull() {
		logrus.Infof("[turn %03d] U-%s (%s) has died", turn, u.ID, u.Controller)
		e.recordDeath(turn, u)
	}
	e.roundLog = e.roundLog[:0]
	e.World.Turn++
	return nil
}

// takeTurn runs the request/decode/resolve/record/reply sequence for one unit.
func (e *Engine) takeTurn(ctx context.Context, turn int, u *Unit) {
	ctrl := e.byName[u.Controller]
	if cause, gone := e.disconnected[u.Controller]; gone {
		e.forfeit(turn, u, cause)
		return
	}

	raw, err := e.requestAction(ctx, ctrl, u.ID)
	var action Action = Delay{Unit: u.ID}
	outcome := trace.OutcomeOK
	detail := ""
	switch {
	case err == nil:
		req, derr := Decode(raw)
		if derr != nil {
			logrus.Warnf("U-%s: %v; treating as delay", u.ID, derr)
			outcome, detail = trace.OutcomeDecodeError, derr.Error()
			break
		}
		if req.Unit != u.ID.String() {
			logrus.Warnf("U-%s: %s answered for unit %s; acting for U-%s", u.ID, ctrl.Name(), req.Unit, u.ID)
		}
		if req.Kind == KindSpawn {
			logrus.Warnf("U-%s: spawn is engine-only, rejected", u.ID)
			outcome, detail = trace.OutcomeRejected, "spawn is engine-only: "+raw
			break
		}
		action = BuildAction(req, u.ID)
	case ctx.Err() != nil:
		logrus.Infof("U-%s: match cancelled before %s answered", u.ID, ctrl.Name())
		return
	case isTimeout(err):
		logrus.Warnf("U-%s: %s did not answer in %v; treating as delay", u.ID, ctrl.Name(), e.Config.RequestTimeout)
		outcome, detail = trace.OutcomeTimeout, err.Error()
		e.markOverdue(ctrl.Name(), u.ID)
	default:
		e.disconnect(ctrl.Name(), err)
		e.forfeit(turn, u, err)
		return
	}

	result := Resolve(e.World, action)
	if outcome == trace.OutcomeRejected {
		result = Failure
	}
	u.LastAction = action
	e.roundLog = append(e.roundLog, action)
	e.record(turn, u, action, result, outcome, detail)

	if err := e.sendResult(ctx, ctrl, result); err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			logrus.Warnf("U-%s: result %s not delivered: %v", u.ID, result, err)
			return
		}
		e.disconnect(ctrl.Name(), err)
		e.forfeit(turn, u, err)
	}
}

func (e *Engine) requestAction(ctx context.Context, ctrl Controller, id UnitID) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.Config.RequestTimeout)
	defer cancel()
	logrus.Debugf("> %s: U-%s", ctrl.Name(), id)
	if err := ctrl.SendID(reqCtx, id); err != nil {
		return "", err
	}
	for {
		raw, err := ctrl.ReceiveBytecode(reqCtx)
		if err != nil {
			return "", err
		}
		logrus.Debugf("< %s: %s", ctrl.Name(), raw)
		if late, ok := e.lateReply(ctrl.Name(), id, raw); ok {
			logrus.Warnf("U-%s: discarding late reply for U-%s from %s", id, late, ctrl.Name())
			continue
		}
		return raw, nil
	}
}

func (e *Engine) markOverdue(name string, id UnitID) {
	owed := e.overdue[name]
	if owed == nil {
		owed = make(map[UnitID]int)
		e.overdue[name] = owed
	}
	owed[id]++
}

// lateReply reports whether raw answers an earlier, timed-out request of
// another unit rather than the request for id. Matching replies consume
// one owed entry.
func (e *Engine) lateReply(name string, id UnitID, raw string) (UnitID, bool) {
	owed := e.overdue[name]
	if len(owed) == 0 {
		return 0, false
	}
	req, err := Decode(raw)
	if err != nil {
		return 0, false
	}
	subject, err := req.UnitID()
	if err != nil || subject == id || owed[subject] == 0 {
		return 0, false
	}
	if owed[subject]--; owed[subject] == 0 {
		delete(owed, subject)
	}
	return subject, true
}

func (e *Engine) sendResult(ctx context.Context, ctrl Controller, result Result) error {
	reqCtx, cancel := context.WithTimeout(ctx, e.Config.RequestTimeout)
	defer cancel()
	logrus.Debugf("> %s: returning %s", ctrl.Name(), result)
	return ctrl.SendResult(reqCtx, result.String())
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) disconnect(name string, cause error) {
	if _, already := e.disconnected[name]; already {
		return
	}
	logrus.Errorf("controller %s disconnected: %v", name, cause)
	e.disconnected[name] = cause
}

// forfeit removes u from further play. The unit is culled at the end of
// the round and reported in the summary.
func (e *Engine) forfeit(turn int, u *Unit, cause error) {
	if u.Forfeited {
		return
	}
	if err := e.World.Forfeit(u.ID); err != nil {
		logrus.Warnf("forfeit: %v", err)
		return
	}
	logrus.Warnf("U-%s (%s) forfeits: %v", u.ID, u.Controller, cause)
	e.forfeits = append(e.forfeits, Forfeit{Unit: u.ID, Controller: u.Controller, Turn: turn, Reason: cause.Error()})
	e.record(turn, u, Delay{Unit: u.ID}, Failure, trace.OutcomeForfeit, cause.Error())
}

func (e *Engine) closeControllers() {
	for _, c := range e.controllers {
		if err := c.Close(); err != nil {
			logrus.Warnf("closing controller %s: %v", c.Name(), err)
		}
	}
}

func (e *Engine) record(turn int, u *Unit, a Action, result Result, outcome trace.Outcome, detail string) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordAction(trace.ActionRecord{
		Turn:       turn,
		Code:       uint16(a.Kind()),
		Kind:       a.Kind().String(),
		Subject:    u.ID.String(),
		Controller: u.Controller,
		Params:     RequestFor(a).Params,
		Result:     result.String(),
		Outcome:    outcome,
		Detail:     detail,
	})
}

func (e *Engine) recordDeath(turn int, u *Unit) {
	if e.recorder == nil {
		return
	}
	pos := u.Pos
	e.recorder.RecordAction(trace.ActionRecord{
		Turn:       turn,
		Code:       uint16(KindDied),
		Kind:       KindDied.String(),
		Subject:    u.ID.String(),
		Controller: u.Controller,
		Params:     []string{fmt.Sprintf("%02x", byte(pos.X)), fmt.Sprintf("%02x", byte(pos.Y))},
		Result:     HPResult(u.HP).String(),
		Outcome:    trace.OutcomeDied,
	})
}
