// Package trace provides turn-log recording for robobattler matches.
// This package has no dependencies on battle/: it stores pure data types,
// so replay tools can read a log without linking the engine.
package trace

// Outcome classifies how an action record came to be.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"           // bot replied and the action resolved
	OutcomeTimeout     Outcome = "timeout"      // no reply in time; resolved as delay
	OutcomeDecodeError Outcome = "decode-error" // unreadable bytecode; resolved as delay
	OutcomeRejected    Outcome = "rejected"     // engine-only kind issued by a bot; resolved as delay
	OutcomeForfeit     Outcome = "forfeit"      // controller channel failed; unit removed
	OutcomeSetup       Outcome = "setup"        // engine-issued spawn during startup
	OutcomeDied        Outcome = "died"         // culled at end of round
)

// ActionRecord captures one resolved action, or one death, in a match.
type ActionRecord struct {
	Turn       int      // 0 is setup; running rounds count from 1
	Code       uint16   // numeric action kind; 0x0101 marks a death
	Kind       string   // action kind name
	Subject    string   // 4-digit hex unit id
	Controller string   // owning controller name
	Params     []string // 2-digit hex parameter tokens
	Result     string   // wire form of the result sent back to the bot
	Outcome    Outcome
	Detail     string // free-form reason for non-ok outcomes
}
