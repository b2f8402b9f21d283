// Package bot is a sample controller that picks a random action for every
// unit it is asked about. It speaks the line protocol over streams, named
// pipes, websockets and in-memory queues.
package bot

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/zgrow/robobattler/battle"
)

// codeDigits is the width a reply is right-padded to, excluding the 0x prefix.
const codeDigits = 12

// Random answers each request with Delay, Scan, Move or Attack, the latter
// two in a random orthogonal direction.
type Random struct {
	rand *rand.Rand
	seen map[battle.UnitID]int
}

// NewRandom creates a bot drawing from rng.
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rand: rng, seen: make(map[battle.UnitID]int)}
}

// NewRandomSeeded creates a bot from the bot subsystem of seed.
func NewRandomSeeded(seed int64) *Random {
	return NewRandom(battle.NewPartitionedRNG(battle.MatchKey(seed)).ForSubsystem(battle.SubsystemBot))
}

// Choose picks an action for id.
func (b *Random) Choose(id battle.UnitID) battle.Action {
	b.seen[id]++
	dir := battle.Directions[b.rand.Intn(len(battle.Directions))]
	switch battle.ActionKind(b.rand.Intn(int(battle.KindSpawn))) {
	case battle.KindScan:
		return battle.Scan{Unit: id}
	case battle.KindMove:
		return battle.Move{Unit: id, Dir: dir}
	case battle.KindAttack:
		return battle.Attack{Unit: id, Dir: dir}
	default:
		return battle.Delay{Unit: id}
	}
}

// Reply returns the bytecode line for id.
func (b *Random) Reply(id battle.UnitID) string {
	return FormatCode(b.Choose(id))
}

// Units returns how many distinct units the bot has been asked about.
func (b *Random) Units() int {
	return len(b.seen)
}

// FormatCode renders a as 0x-prefixed bytecode padded to twelve digits.
func FormatCode(a battle.Action) string {
	code := battle.EncodeAction(a)
	if len(code) < codeDigits {
		code += strings.Repeat("0", codeDigits-len(code))
	}
	return "0x" + code
}

// ParseUnitID parses a request line from the engine.
func ParseUnitID(line string) (battle.UnitID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(line), 16, 16)
	if err != nil {
		return 0, err
	}
	return battle.UnitID(v), nil
}
