package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zgrow/robobattler/battle/trace"
)

var replayTurn int // Only print this turn; -1 prints all

var replayCmd = &cobra.Command{
	Use:   "replay <turn-log>",
	Short: "Print a recorded match turn by turn",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataPath := args[0]
		mt, err := trace.ReadTurnLog(trace.HeaderPathFor(dataPath), dataPath)
		if err != nil {
			logrus.Fatalf("Failed to read turn log: %v", err)
		}
		printReplay(cmd.OutOrStdout(), mt, replayTurn)
	},
}

// printReplay writes the header, the records of each turn (or only turn
// when it is non-negative) and the aggregate statistics.
func printReplay(w io.Writer, mt *trace.MatchTrace, turn int) {
	h := mt.Header
	fmt.Fprintf(w, "Match %s (%s)\n", h.MatchID, strings.Join(h.Controllers, " vs "))
	fmt.Fprintf(w, "Grid %dx%d, %d units per side, %d HP, %d rounds, seed %d\n",
		h.GridSide, h.GridSide, h.ArmySize, h.StartingHP, h.MaxRounds, h.Seed)

	first, last := 0, mt.LastTurn()
	if turn >= 0 {
		first, last = turn, turn
	}
	for t := first; t <= last; t++ {
		records := mt.Turn(t)
		if len(records) == 0 {
			continue
		}
		if t == 0 {
			fmt.Fprintln(w, "--- Setup ---")
		} else {
			fmt.Fprintf(w, "--- Turn %d ---\n", t)
		}
		for _, r := range records {
			fmt.Fprintln(w, formatRecord(r))
		}
	}

	s := trace.Summarize(mt)
	fmt.Fprintln(w, "=== Turn Log Summary ===")
	fmt.Fprintf(w, "Actions      : %d over %d turns\n", s.TotalActions, s.Turns)
	fmt.Fprintf(w, "Deaths       : %d\n", s.Deaths)
	fmt.Fprintf(w, "Forfeits     : %d\n", s.Forfeits)
	fmt.Fprintf(w, "Timeouts     : %d\n", s.Timeouts)
	fmt.Fprintf(w, "Decode errors: %d\n", s.DecodeErrors)
	for _, kind := range sortedKeys(s.KindCounts) {
		fmt.Fprintf(w, "  %-8s %d\n", kind, s.KindCounts[kind])
	}
	for _, name := range sortedKeys(s.Casualties) {
		fmt.Fprintf(w, "Losses %-10s: %d\n", name, s.Casualties[name])
	}
}

func formatRecord(r trace.ActionRecord) string {
	line := fmt.Sprintf("U-%s (%s) %s", r.Subject, r.Controller, r.Kind)
	if len(r.Params) > 0 {
		line += " " + strings.Join(r.Params, " ")
	}
	if r.Result != "" {
		line += " -> " + r.Result
	}
	if r.Outcome != trace.OutcomeOK {
		line += " [" + string(r.Outcome)
		if r.Detail != "" {
			line += ": " + r.Detail
		}
		line += "]"
	}
	return line
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	replayCmd.Flags().IntVar(&replayTurn, "turn", -1, "Only print this turn (0 is setup)")

	rootCmd.AddCommand(replayCmd)
}
