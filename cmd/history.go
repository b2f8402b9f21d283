package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zgrow/robobattler/battle/store"
)

var (
	historyDB    string // SQLite file written by run --results-db
	historyLimit int    // Most recent matches to list; 0 lists all
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored match results, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := store.OpenSQLite(historyDB)
		if err != nil {
			logrus.Fatalf("Failed to open results database: %v", err)
		}
		defer func() { _ = st.Close() }()

		records, err := st.ListMatches(context.Background(), historyLimit)
		if err != nil {
			logrus.Fatalf("Failed to list matches: %v", err)
		}
		printHistory(cmd.OutOrStdout(), records)
	},
}

func printHistory(w io.Writer, records []store.MatchRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No matches recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYED\tMATCH\tGRID\tTURNS\tREASON\tWINNER\tSURVIVORS\tFORFEITS")
	for _, rec := range records {
		winner := rec.Winner
		if winner == "" {
			winner = "draw"
		}
		var survivors, forfeits []string
		for _, name := range rec.Controllers() {
			survivors = append(survivors, fmt.Sprintf("%s=%d", name, rec.Survivors[name]))
			if n := rec.Forfeits[name]; n > 0 {
				forfeits = append(forfeits, fmt.Sprintf("%s=%d", name, n))
			}
		}
		if len(forfeits) == 0 {
			forfeits = []string{"-"}
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%s\t%s\t%s\t%s\n",
			rec.PlayedAt.Local().Format(time.DateTime), rec.ID, rec.GridSide, rec.GridSide,
			rec.Turns, rec.Reason, winner, strings.Join(survivors, " "), strings.Join(forfeits, " "))
	}
	_ = tw.Flush()
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "SQLite results database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Most recent matches to list (0 lists all)")
	_ = historyCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(historyCmd)
}
