// Builds the end-of-match report: turns, survivors, casualties, forfeits.

package battle

import (
	"fmt"
	"io"
	"sort"
)

// Forfeit records a unit removed because its controller channel failed.
type Forfeit struct {
	Unit       UnitID
	Controller string
	Turn       int
	Reason     string
}

// UnitReport is a snapshot of one unit for the summary.
type UnitReport struct {
	ID         UnitID
	Controller string
	Pos        Position
	HP         int
	LastAction ActionKind
	Forfeited  bool
}

// MatchSummary aggregates the outcome of a match for final reporting.
type MatchSummary struct {
	Turns     int            // running rounds completed
	Rounds    int            // rounds executed, setup included
	Reason    EndReason      // why the match ended
	Survivors map[string]int // controller -> live units
	Winner    string         // controller with the most survivors; empty on a tie
	Live      []UnitReport
	Dead      []UnitReport
	Forfeits  []Forfeit
}

// Summary builds a report of the current world state.
func (e *Engine) Summary() *MatchSummary {
	s := &MatchSummary{
		Turns:     e.World.Turn,
		Rounds:    e.rounds,
		Reason:    e.endReason,
		Survivors: make(map[string]int, len(e.controllers)),
		Forfeits:  append([]Forfeit(nil), e.forfeits...),
	}
	for _, c := range e.controllers {
		s.Survivors[c.Name()] = 0
	}
	for name, n := range e.World.CountByController() {
		s.Survivors[name] = n
	}
	for _, u := range e.World.Live {
		s.Live = append(s.Live, reportOf(u))
	}
	for _, u := range e.World.Dead {
		s.Dead = append(s.Dead, reportOf(u))
	}
	s.Winner = leader(s.Survivors)
	return s
}

func reportOf(u *Unit) UnitReport {
	r := UnitReport{ID: u.ID, Controller: u.Controller, Pos: u.Pos, HP: u.HP, Forfeited: u.Forfeited}
	if u.LastAction != nil {
		r.LastAction = u.LastAction.Kind()
	}
	return r
}

func leader(survivors map[string]int) string {
	best, bestN, tie := "", 0, false
	for name, n := range survivors {
		switch {
		case n > bestN:
			best, bestN, tie = name, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return best
}

// Print writes a human-readable report, one unit per line.
func (s *MatchSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Match Summary ===")
	fmt.Fprintf(w, "Turns played        : %d\n", s.Turns)
	fmt.Fprintf(w, "End reason          : %s\n", s.Reason)

	names := make([]string, 0, len(s.Survivors))
	for name := range s.Survivors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "Survivors %-10s: %d\n", name, s.Survivors[name])
	}
	if s.Winner != "" {
		fmt.Fprintf(w, "Winner              : %s\n", s.Winner)
	} else {
		fmt.Fprintln(w, "Winner              : draw")
	}

	for _, u := range s.Live {
		fmt.Fprintf(w, "U-%s[%d] :%d,%d:%s (%s)\n", u.ID, u.HP, u.Pos.X, u.Pos.Y, u.LastAction, u.Controller)
	}
	for _, u := range s.Dead {
		fmt.Fprintf(w, "D-%s[%d] :%d,%d:%s (%s)\n", u.ID, u.HP, u.Pos.X, u.Pos.Y, u.LastAction, u.Controller)
	}
	fmt.Fprintln(w, "  id   HP  x, y  ^last action taken")

	for _, f := range s.Forfeits {
		fmt.Fprintf(w, "Forfeit U-%s (%s) on turn %d: %s\n", f.Unit, f.Controller, f.Turn, f.Reason)
	}
}
