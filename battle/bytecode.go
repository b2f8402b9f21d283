// Defines the bytecode wire format spoken between the referee and its bots.
//
//	0x0000 0000 [00 00 ...]
//	  kind unit  params
//
// kind and unit are 4 hex digits each; params are 2-digit tokens.
// Unit 0000 is reserved for engine-originated requests.

package battle

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kindDigits   = 4
	unitDigits   = 4
	paramDigits  = 2
	minDigits    = kindDigits + unitDigits
	paddedDigits = minDigits + 2*paramDigits
)

// ActionKind is the first field of every bytecode.
type ActionKind uint16

const (
	KindDelay  ActionKind = 0
	KindScan   ActionKind = 1
	KindMove   ActionKind = 2
	KindAttack ActionKind = 3
	KindSpawn  ActionKind = 4

	// KindDied is a meta kind used only by the turn log. Kinds at or above
	// 0x0100 never appear in bot traffic.
	KindDied ActionKind = 0x0101
)

var kindNames = map[ActionKind]string{
	KindDelay:  "delay",
	KindScan:   "scan",
	KindMove:   "move",
	KindAttack: "attack",
	KindSpawn:  "spawn",
	KindDied:   "died",
}

func (k ActionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%04x)", uint16(k))
}

// IsUnitKind reports whether k may appear in a bot's bytecode.
func (k ActionKind) IsUnitKind() bool {
	return k <= KindSpawn
}

// ParseActionKind maps a kind name back to its value.
func ParseActionKind(name string) (ActionKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Direction is the single parameter byte of Move and Attack.
// The high nibble is the vertical axis and the low nibble the horizontal one.
type Direction byte

const (
	DirNone  Direction = 0x00
	DirUp    Direction = 0x10
	DirDown  Direction = 0xA0
	DirLeft  Direction = 0x01
	DirRight Direction = 0x0A
)

// Directions lists the four valid single-step directions.
var Directions = []Direction{DirUp, DirDown, DirLeft, DirRight}

var dirOffsets = map[Direction]Position{
	DirUp:    {X: 0, Y: 1},
	DirDown:  {X: 0, Y: -1},
	DirLeft:  {X: -1, Y: 0},
	DirRight: {X: 1, Y: 0},
}

// Offset returns the unit step for d. ok is false for DirNone and reserved patterns.
func (d Direction) Offset() (offset Position, ok bool) {
	offset, ok = dirOffsets[d]
	return offset, ok
}

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return fmt.Sprintf("dir(0x%02x)", byte(d))
}

// Request is a decoded bytecode: an action kind, the subject's 4-digit hex
// token and at least one 2-digit parameter token.
type Request struct {
	Kind   ActionKind
	Unit   string
	Params []string
}

// UnitID parses the subject token.
func (r Request) UnitID() (UnitID, error) {
	v, err := strconv.ParseUint(r.Unit, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parsing unit token %q: %w", r.Unit, err)
	}
	return UnitID(v), nil
}

// Param returns parameter token i as a byte, or 0 when it is absent.
func (r Request) Param(i int) byte {
	if i < 0 || i >= len(r.Params) {
		return 0
	}
	v, err := strconv.ParseUint(r.Params[i], 16, 8)
	if err != nil {
		return 0
	}
	return byte(v)
}

// Decode parses a bytecode string. An optional 0x prefix and surrounding
// whitespace are ignored. Inputs shorter than 8 digits fail with
// *FormatError; kinds outside Delay..Spawn fail with *UnknownActionError.
//
// Trailing 00 parameter tokens after the first are dropped because they
// cannot be told apart from padding, so Decode(Encode(r)) == r for every
// decoded r.
func Decode(raw string) (Request, error) {
	code := strings.TrimSpace(raw)
	if strings.HasPrefix(code, "0x") || strings.HasPrefix(code, "0X") {
		code = code[2:]
	}
	if len(code) < minDigits {
		return Request{}, &FormatError{Input: raw, Reason: fmt.Sprintf("need at least %d hex digits, got %d", minDigits, len(code))}
	}
	for i := 0; i < len(code); i++ {
		if !isHexDigit(code[i]) {
			return Request{}, &FormatError{Input: raw, Reason: fmt.Sprintf("non-hex character %q at offset %d", code[i], i)}
		}
	}
	code = strings.ToLower(code)
	if len(code) < paddedDigits {
		code += strings.Repeat("0", paddedDigits-len(code))
	}

	kind, err := strconv.ParseUint(code[:kindDigits], 16, 16)
	if err != nil {
		return Request{}, &FormatError{Input: raw, Reason: err.Error()}
	}
	if !ActionKind(kind).IsUnitKind() {
		return Request{}, &UnknownActionError{Kind: uint16(kind)}
	}

	tail := code[minDigits:]
	if len(tail)%paramDigits != 0 {
		tail += "0"
	}
	params := make([]string, 0, len(tail)/paramDigits)
	for i := 0; i < len(tail); i += paramDigits {
		params = append(params, tail[i:i+paramDigits])
	}
	for len(params) > 1 && params[len(params)-1] == "00" {
		params = params[:len(params)-1]
	}

	return Request{
		Kind:   ActionKind(kind),
		Unit:   code[kindDigits:minDigits],
		Params: params,
	}, nil
}

// Encode is the mirror of Decode. The result carries no 0x prefix.
func Encode(r Request) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%04x", uint16(r.Kind)))
	unit := strings.ToLower(r.Unit)
	if len(unit) < 4 {
		unit = strings.Repeat("0", 4-len(unit)) + unit
	}
	sb.WriteString(unit)
	for _, p := range r.Params {
		sb.WriteString(strings.ToLower(p))
	}
	return sb.String()
}

// EncodeAction renders a built action as bytecode.
func EncodeAction(a Action) string {
	return Encode(RequestFor(a))
}

// RequestFor converts a built action back into its wire tuple.
func RequestFor(a Action) Request {
	return Request{Kind: a.Kind(), Unit: a.Subject().String(), Params: paramTokens(a)}
}

func paramTokens(a Action) []string {
	switch act := a.(type) {
	case Move:
		return []string{fmt.Sprintf("%02x", byte(act.Dir))}
	case Attack:
		return []string{fmt.Sprintf("%02x", byte(act.Dir))}
	case Spawn:
		return []string{fmt.Sprintf("%02x", byte(act.At.X)), fmt.Sprintf("%02x", byte(act.At.Y))}
	}
	return []string{"00"}
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
