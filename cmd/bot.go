package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/zgrow/robobattler/battle/bot"
)

var (
	botPipe string // FIFO base path created by `run --pipeN`
	botURL  string // Websocket URL served by `run --listen`
	botSeed int64  // Seed for the bot's choices
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Play one side with the random sample bot",
	Long: `Play one side with the random sample bot. The bot talks over a FIFO pair
(--pipe), a websocket (--url), or stdin/stdout when neither is given, so it can
also be launched by run --botN.`,
	Run: func(cmd *cobra.Command, args []string) {
		if botPipe != "" && botURL != "" {
			logrus.Fatalf("--pipe and --url are mutually exclusive")
		}
		if !cmd.Flags().Changed("seed") {
			botSeed = time.Now().UnixNano()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
		defer stop()

		b := bot.NewRandomSeeded(botSeed)
		var err error
		switch {
		case botPipe != "":
			err = bot.RunFIFO(ctx, botPipe, b)
		case botURL != "":
			conn, dialErr := bot.DialWebSocket(ctx, botURL)
			if dialErr != nil {
				logrus.Fatalf("Failed to connect: %v", dialErr)
			}
			defer func() { _ = conn.Close() }()
			err = bot.RunWebSocket(ctx, conn, b)
		default:
			err = bot.RunStream(ctx, os.Stdin, os.Stdout, b)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.Fatalf("Bot failed: %v", err)
		}
		logrus.Infof("Bot finished after commanding %d units", b.Units())
	},
}

func init() {
	botCmd.Flags().StringVar(&botPipe, "pipe", "", "FIFO base path to play on")
	botCmd.Flags().StringVar(&botURL, "url", "", "Websocket URL to play on, e.g. ws://localhost:8080/controller/red")
	botCmd.Flags().Int64Var(&botSeed, "seed", 0, "Seed for the bot's choices (default: time based)")

	rootCmd.AddCommand(botCmd)
}
