package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/zgrow/robobattler/battle"
	"github.com/zgrow/robobattler/battle/bot"
	"github.com/zgrow/robobattler/battle/store"
	"github.com/zgrow/robobattler/battle/trace"
	"github.com/zgrow/robobattler/battle/transport"
)

var (
	configPath     string        // Path to YAML match config
	name1, name2   string        // Controller names
	pipe1, pipe2   string        // FIFO base paths, one pair per side
	bot1, bot2     string        // Bot commands launched as child processes
	listenAddr     string        // Address for websocket controllers
	gridSide       int           // Side length of the grid
	startingHP     int           // HP of every starting unit
	armySize       int           // Units per side
	maxRounds      int           // Rounds before the match ends
	requestTimeout time.Duration // Per-unit exchange budget
	seed           int64         // Seed for ids and placement
	turnLogPath    string        // Where to export the turn log
	resultsDB      string        // SQLite file for match history
)

// runOptions is everything a match needs once flags are resolved.
type runOptions struct {
	Config    battle.MatchConfig
	Names     []string
	Pipes     []string // per side; empty means not a FIFO side
	Bots      []string // per side; empty means not a process side
	Listen    string
	TurnLog   string
	ResultsDB string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Referee one match between two controllers",
	Long: `Referee one match. Each side is served, in order of preference, by a FIFO
pair (--pipeN), a child process (--botN), a websocket connection when --listen
is set, or the built-in random bot.

Send SIGUSR1 to pause the match between rounds and SIGUSR2 to resume it.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildMatchConfig(cmd.Flags().Changed)
		if err != nil {
			logrus.Fatalf("Invalid match config: %v", err)
		}
		opts := runOptions{
			Config:    cfg,
			Names:     []string{name1, name2},
			Pipes:     []string{pipe1, pipe2},
			Bots:      []string{bot1, bot2},
			Listen:    listenAddr,
			TurnLog:   turnLogPath,
			ResultsDB: resultsDB,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
		defer stop()

		if _, err := runMatch(ctx, opts, os.Stdout); err != nil {
			logrus.Fatalf("Match failed: %v", err)
		}
	},
}

// buildMatchConfig starts from --config (or the defaults) and applies every
// flag the user actually set.
func buildMatchConfig(changed func(name string) bool) (battle.MatchConfig, error) {
	cfg := battle.DefaultMatchConfig()
	if configPath != "" {
		loaded, err := battle.LoadMatchConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if changed("size") {
		cfg.GridSide = gridSide
	}
	if changed("hp") {
		cfg.StartingHP = startingHP
	}
	if changed("army") {
		cfg.ArmySize = armySize
	}
	if changed("time") {
		cfg.MaxRounds = maxRounds
	}
	if changed("timeout") {
		cfg.RequestTimeout = requestTimeout
	}
	if changed("seed") {
		cfg.Seed = seed
	}
	return cfg, cfg.Validate()
}

// runMatch opens the controllers, plays the match, prints the summary to out
// and exports the turn log and history row when asked to.
func runMatch(ctx context.Context, opts runOptions, out io.Writer) (*battle.MatchSummary, error) {
	matchID := store.NewMatchID()
	logrus.Infof("Match %s: %v on a %dx%d grid", matchID, opts.Names, opts.Config.GridSide, opts.Config.GridSide)

	sides, err := openSides(ctx, opts)
	if err != nil {
		return nil, err
	}

	mt := trace.NewMatchTrace(trace.TraceConfig{Level: trace.TraceLevelActions}, trace.Header{
		MatchID:     matchID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		GridSide:    opts.Config.GridSide,
		StartingHP:  opts.Config.StartingHP,
		ArmySize:    opts.Config.ArmySize,
		MaxRounds:   opts.Config.MaxRounds,
		Seed:        opts.Config.Seed,
		Controllers: opts.Names,
	})
	engine, err := battle.NewEngine(opts.Config, sides.controllers, battle.WithRecorder(mt))
	if err != nil {
		sides.abort()
		return nil, err
	}

	stopSignals := watchControlSignals(ctx, engine)
	summary, err := engine.Run(ctx)
	stopSignals()
	if err != nil {
		sides.abort()
		return nil, err
	}
	sides.finish()
	summary.Print(out)

	if opts.TurnLog != "" {
		if err := trace.ExportTurnLog(mt, trace.HeaderPathFor(opts.TurnLog), opts.TurnLog); err != nil {
			return summary, fmt.Errorf("exporting turn log: %w", err)
		}
		logrus.Infof("Turn log written to %s (%d records)", opts.TurnLog, len(mt.Records))
	}
	if opts.ResultsDB != "" {
		rec := store.NewMatchRecord(matchID, opts.Config, summary, opts.TurnLog)
		if err := saveResult(context.WithoutCancel(ctx), opts.ResultsDB, rec); err != nil {
			return summary, fmt.Errorf("saving match result: %w", err)
		}
		logrus.Infof("Match %s saved to %s", matchID, opts.ResultsDB)
	}
	return summary, nil
}

func saveResult(ctx context.Context, path string, rec store.MatchRecord) error {
	st, err := store.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return st.SaveMatch(ctx, rec)
}

// matchSides owns the controllers of one match plus whatever keeps them
// alive: embedded bot goroutines and the websocket listener.
type matchSides struct {
	controllers []battle.Controller
	bots        sync.WaitGroup
	server      *http.Server
}

func openSides(ctx context.Context, opts runOptions) (*matchSides, error) {
	ms := &matchSides{}

	var ws *transport.WSServer
	if opts.Listen != "" {
		var wsNames []string
		for i, name := range opts.Names {
			if sideArg(opts.Pipes, i) == "" && sideArg(opts.Bots, i) == "" {
				wsNames = append(wsNames, name)
			}
		}
		if len(wsNames) > 0 {
			ln, err := net.Listen("tcp", opts.Listen)
			if err != nil {
				return nil, fmt.Errorf("listening on %s: %w", opts.Listen, err)
			}
			ws = transport.NewWSServer(wsNames...)
			ms.server = &http.Server{Handler: ws.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := ms.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logrus.Errorf("Websocket listener stopped: %v", err)
				}
			}()
			for _, name := range wsNames {
				logrus.Infof("Waiting for %s at ws://%s%s%s", name, ln.Addr(), transport.ControllerPath, name)
			}
		}
	}

	for i, name := range opts.Names {
		c, err := ms.open(ctx, i, name, opts, ws)
		if err != nil {
			ms.abort()
			return nil, fmt.Errorf("opening controller %s: %w", name, err)
		}
		ms.controllers = append(ms.controllers, c)
	}
	return ms, nil
}

func (ms *matchSides) open(ctx context.Context, i int, name string, opts runOptions, ws *transport.WSServer) (battle.Controller, error) {
	if base := sideArg(opts.Pipes, i); base != "" {
		s, err := transport.OpenFIFO(ctx, name, base)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if command := sideArg(opts.Bots, i); command != "" {
		s, err := transport.StartProcess(ctx, name, strings.Fields(command))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if ws != nil {
		c, err := ws.Accept(ctx, name)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	q := transport.NewQueue(name)
	b := bot.NewRandomSeeded(opts.Config.Seed + int64(i) + 1)
	logrus.Infof("%s is played by the built-in random bot", name)
	ms.bots.Add(1)
	go func() {
		defer ms.bots.Done()
		if err := bot.RunQueue(ctx, q, b); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Warnf("Built-in bot %s stopped: %v", name, err)
		}
	}()
	return q, nil
}

// abort closes controllers that never reached an engine.
func (ms *matchSides) abort() {
	for _, c := range ms.controllers {
		if err := c.Close(); err != nil {
			logrus.Debugf("closing %s: %v", c.Name(), err)
		}
	}
	ms.finish()
}

func (ms *matchSides) finish() {
	ms.bots.Wait()
	if ms.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ms.server.Shutdown(shutdownCtx)
	}
}

func sideArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// watchControlSignals maps SIGUSR1 to Pause and SIGUSR2 to Resume until the
// returned stop func is called.
func watchControlSignals(ctx context.Context, e *battle.Engine) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGUSR1, unix.SIGUSR2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-sigs:
				switch sig {
				case unix.SIGUSR1:
					logrus.Infof("Pause requested")
					e.Pause()
				case unix.SIGUSR2:
					logrus.Infof("Resume requested")
					e.Resume()
				}
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML match config")
	runCmd.Flags().StringVar(&name1, "name1", "red", "Name of the first controller")
	runCmd.Flags().StringVar(&name2, "name2", "blue", "Name of the second controller")
	runCmd.Flags().StringVar(&pipe1, "pipe1", "", "FIFO base path for the first controller (creates <path>.req and <path>.resp)")
	runCmd.Flags().StringVar(&pipe2, "pipe2", "", "FIFO base path for the second controller")
	runCmd.Flags().StringVar(&bot1, "bot1", "", "Command that runs the first controller over stdin/stdout")
	runCmd.Flags().StringVar(&bot2, "bot2", "", "Command that runs the second controller over stdin/stdout")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Accept websocket controllers on this address, e.g. :8080")
	runCmd.Flags().IntVar(&gridSide, "size", battle.DefaultGridSide, "Side length of the square grid")
	runCmd.Flags().IntVar(&startingHP, "hp", battle.DefaultStartingHP, "HP of every starting unit")
	runCmd.Flags().IntVar(&armySize, "army", battle.DefaultArmySize, "Starting units per side")
	runCmd.Flags().IntVar(&maxRounds, "time", battle.DefaultMaxRounds, "Rounds to play before the match ends")
	runCmd.Flags().DurationVar(&requestTimeout, "timeout", battle.DefaultRequestTimeout, "Time a controller has to answer for one unit")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for unit ids and placement")
	runCmd.Flags().StringVar(&turnLogPath, "turn-log", "", "Export the turn log to this CSV path (.zst compresses)")
	runCmd.Flags().StringVar(&resultsDB, "results-db", "", "Append the match result to this SQLite database")

	rootCmd.AddCommand(runCmd)
}
