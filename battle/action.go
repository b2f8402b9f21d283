package battle

import (
	"strconv"

	"github.com/sirupsen/logrus"
)

// Action is the closed set of unit actions: Delay, Scan, Move, Attack and
// Spawn. The unexported marker keeps the set fixed to this package, and
// Resolve switches over it exhaustively.
type Action interface {
	Kind() ActionKind
	Subject() UnitID
	isAction()
}

// Delay does nothing for one turn.
type Delay struct{ Unit UnitID }

// Scan is reserved for a future tile report; today it behaves like Delay.
type Scan struct{ Unit UnitID }

// Move steps one tile in an orthogonal direction.
type Move struct {
	Unit UnitID
	Dir  Direction
}

// Attack strikes the adjacent tile in an orthogonal direction.
type Attack struct {
	Unit UnitID
	Dir  Direction
}

// Spawn places an allocated unit at an explicit location. It is issued by
// the engine during setup only.
type Spawn struct {
	Unit UnitID
	At   Position
}

func (Delay) Kind() ActionKind  { return KindDelay }
func (Scan) Kind() ActionKind   { return KindScan }
func (Move) Kind() ActionKind   { return KindMove }
func (Attack) Kind() ActionKind { return KindAttack }
func (Spawn) Kind() ActionKind  { return KindSpawn }

func (a Delay) Subject() UnitID  { return a.Unit }
func (a Scan) Subject() UnitID   { return a.Unit }
func (a Move) Subject() UnitID   { return a.Unit }
func (a Attack) Subject() UnitID { return a.Unit }
func (a Spawn) Subject() UnitID  { return a.Unit }

func (Delay) isAction()  {}
func (Scan) isAction()   {}
func (Move) isAction()   {}
func (Attack) isAction() {}
func (Spawn) isAction()  {}

// BuildAction turns a decoded request into a concrete action for subject.
// The subject is passed explicitly: the engine always acts for the unit it
// asked about, whatever id the bot echoed back.
func BuildAction(req Request, subject UnitID) Action {
	switch req.Kind {
	case KindScan:
		return Scan{Unit: subject}
	case KindMove:
		return Move{Unit: subject, Dir: Direction(req.Param(0))}
	case KindAttack:
		return Attack{Unit: subject, Dir: Direction(req.Param(0))}
	case KindSpawn:
		return Spawn{Unit: subject, At: Position{X: int(req.Param(0)), Y: int(req.Param(1))}}
	}
	return Delay{Unit: subject}
}

// ResultKind tags the payload of a Result.
type ResultKind int

const (
	ResultBool ResultKind = iota
	ResultPosition
	ResultHP
)

// Result is the value sent back to a controller after its action resolves.
type Result struct {
	Kind ResultKind
	OK   bool     // ResultBool
	Pos  Position // ResultPosition
	HP   int      // ResultHP
}

// Success and Failure are the boolean results.
var (
	Success = Result{Kind: ResultBool, OK: true}
	Failure = Result{Kind: ResultBool, OK: false}
)

// PositionResult wraps a position.
func PositionResult(pos Position) Result {
	return Result{Kind: ResultPosition, Pos: pos}
}

// HPResult wraps a hit point value.
func HPResult(hp int) Result {
	return Result{Kind: ResultHP, HP: hp}
}

// String renders the wire form: True, False, (x, y) or a decimal HP.
func (r Result) String() string {
	switch r.Kind {
	case ResultPosition:
		return r.Pos.String()
	case ResultHP:
		return strconv.Itoa(r.HP)
	}
	if r.OK {
		return "True"
	}
	return "False"
}

// Resolve executes a against w and returns its result. Illegal moves and
// attacks degrade to no-ops; Resolve never fails.
func Resolve(w *World, a Action) Result {
	switch act := a.(type) {
	case Delay:
		logrus.Debugf("U-%s: delay", act.Unit)
		return Success
	case Scan:
		logrus.Debugf("U-%s: scan", act.Unit)
		return Success
	case Move:
		return resolveMove(w, act)
	case Attack:
		return resolveAttack(w, act)
	case Spawn:
		return resolveSpawn(w, act)
	}
	logrus.Warnf("resolve: unhandled action %T", a)
	return Failure
}

func resolveMove(w *World, act Move) Result {
	from := w.LocationOf(act.Unit)
	offset, ok := act.Dir.Offset()
	if !ok || from == NoPosition {
		logrus.Debugf("U-%s: move %s rejected", act.Unit, act.Dir)
		return PositionResult(from)
	}
	to := from.Add(offset)
	if !w.InBounds(to) || w.IsOccupied(to) {
		logrus.Debugf("U-%s: move from %s to %s blocked", act.Unit, from, to)
		return PositionResult(from)
	}
	if err := w.SetLocation(act.Unit, to); err != nil {
		return PositionResult(from)
	}
	logrus.Debugf("U-%s: move from %s to %s", act.Unit, from, to)
	return PositionResult(to)
}

func resolveAttack(w *World, act Attack) Result {
	from := w.LocationOf(act.Unit)
	offset, ok := act.Dir.Offset()
	if !ok || from == NoPosition {
		return Failure
	}
	target, occupied := w.UnitAt(from.Add(offset))
	if !occupied {
		logrus.Debugf("U-%s: attack %s hit nothing", act.Unit, act.Dir)
		return Failure
	}
	hp, err := w.AdjustHP(target, -1)
	if err != nil {
		return Failure
	}
	logrus.Debugf("U-%s: attack %s hit U-%s, HP now %d", act.Unit, act.Dir, target, hp)
	return HPResult(hp)
}

func resolveSpawn(w *World, act Spawn) Result {
	if err := w.SetLocation(act.Unit, act.At); err != nil {
		return PositionResult(NoPosition)
	}
	logrus.Debugf("U-%s: spawned at %s", act.Unit, act.At)
	return PositionResult(act.At)
}
