package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgrow/robobattler/battle"
	"github.com/zgrow/robobattler/battle/trace"
)

// pipeBot is the far end of a Stream: it reads what the engine writes and
// writes replies back.
type pipeBot struct {
	lines *bufio.Scanner
	w     *io.PipeWriter
}

func newPipeStream(t *testing.T) (*Stream, *pipeBot) {
	t.Helper()
	botR, engW := io.Pipe()
	engR, botW := io.Pipe()
	s := NewStream("red", engR, engW, engW, engR)
	t.Cleanup(func() {
		_ = s.Close()
		_ = botW.Close()
		_ = botR.Close()
	})
	return s, &pipeBot{lines: bufio.NewScanner(botR), w: botW}
}

// readLine returns the next line, or "" once the engine side is gone.
func (b *pipeBot) readLine() string {
	if !b.lines.Scan() {
		return ""
	}
	return b.lines.Text()
}

func (b *pipeBot) reply(line string) {
	_, _ = io.WriteString(b.w, line+"\n")
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStream_Exchange(t *testing.T) {
	// GIVEN a stream whose bot echoes a delay for each id
	s, bot := newPipeStream(t)
	ctx := testCtx(t)
	got := make(chan string, 2)
	go func() {
		id := bot.readLine()
		bot.reply("0x0000" + id + "00")
		got <- id
		got <- bot.readLine()
	}()

	// WHEN the engine runs one exchange
	require.NoError(t, s.SendID(ctx, 0x1a2b))
	code, err := s.ReceiveBytecode(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SendResult(ctx, "True"))

	// THEN both sides saw the protocol lines
	assert.Equal(t, "0x00001a2b00", code)
	assert.Equal(t, "1a2b", <-got)
	assert.Equal(t, "True", <-got)
	assert.Equal(t, "red", s.Name())
}

func TestStream_TimeoutThenStaleReplyDiscarded(t *testing.T) {
	// GIVEN a bot that answers its first request only when told to
	s, bot := newPipeStream(t)
	ctx := testCtx(t)
	late := make(chan struct{})
	go func() {
		id := bot.readLine()
		<-late
		bot.reply("0x0000" + id + "00")
		id = bot.readLine()
		bot.reply("0x0001" + id + "00")
	}()
	require.NoError(t, s.SendID(ctx, 1))

	// WHEN the reply misses its deadline
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := s.ReceiveBytecode(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// AND arrives late
	close(late)
	require.Eventually(t, func() bool { return len(s.in.lines) == 1 }, time.Second, 5*time.Millisecond)

	// THEN the next request does not see it
	require.NoError(t, s.SendID(ctx, 2))
	code, err := s.ReceiveBytecode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x0001000200", code)
}

func TestStream_EOFIsTransportError(t *testing.T) {
	s, bot := newPipeStream(t)
	require.NoError(t, bot.w.Close())

	_, err := s.ReceiveBytecode(testCtx(t))

	var te *battle.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "receive", te.Op)
	assert.ErrorIs(t, err, io.EOF)

	// the failure sticks
	err = s.SendID(testCtx(t), 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_ClosedRejectsWrites(t *testing.T) {
	s, _ := newPipeStream(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "idempotent")

	err := s.SendResult(testCtx(t), "True")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStream_ReplyArrivingAfterNextRequestIsDiscarded(t *testing.T) {
	// GIVEN red over real pipes, whose bot answers its first unit only
	// after the deadline and the next request have passed
	engR, botW, err := os.Pipe()
	require.NoError(t, err)
	botR, engW, err := os.Pipe()
	require.NoError(t, err)
	red := NewStream("red", engR, engW, engW, engR)
	t.Cleanup(func() {
		_ = red.Close()
		_ = botW.Close()
		_ = botR.Close()
	})
	go func() {
		lines := bufio.NewScanner(botR)
		first := true
		for lines.Scan() {
			id := lines.Text()
			if first {
				first = false
				time.Sleep(150 * time.Millisecond)
				_, _ = io.WriteString(botW, "0x0002"+id+"10\n")
			} else {
				_, _ = io.WriteString(botW, "0x0001"+id+"00\n")
			}
			if !lines.Scan() {
				return
			}
		}
	}()

	ctx := testCtx(t)
	blue := NewQueue("blue")
	go func() {
		for {
			id, err := blue.NextID(ctx)
			if err != nil {
				return
			}
			if blue.Reply(ctx, "0x0000"+id.String()+"00") != nil {
				return
			}
			if _, err := blue.Result(ctx); err != nil {
				return
			}
		}
	}()

	cfg := battle.DefaultMatchConfig()
	cfg.GridSide = 8
	cfg.ArmySize = 2
	cfg.MaxRounds = 1
	cfg.RequestTimeout = 100 * time.Millisecond
	cfg.Placements = []battle.Placement{
		{Side: 0, X: 0, Y: 0}, {Side: 0, X: 3, Y: 0},
		{Side: 1, X: 0, Y: 7}, {Side: 1, X: 3, Y: 7},
	}
	mt := trace.NewMatchTrace(trace.TraceConfig{Level: trace.TraceLevelActions}, trace.Header{})
	e, err := battle.NewEngine(cfg, []battle.Controller{red, blue}, battle.WithRecorder(mt))
	require.NoError(t, err)

	// WHEN the round runs
	_, err = e.Run(ctx)
	require.NoError(t, err)

	// THEN the first unit timed out and the second acted on its own scan
	var redRecords []trace.ActionRecord
	for _, r := range mt.Turn(1) {
		if r.Controller == "red" {
			redRecords = append(redRecords, r)
		}
	}
	require.Len(t, redRecords, 2)
	assert.Equal(t, trace.OutcomeTimeout, redRecords[0].Outcome)
	assert.Equal(t, "scan", redRecords[1].Kind)
	assert.Equal(t, trace.OutcomeOK, redRecords[1].Outcome)
	assert.NotEqual(t, redRecords[0].Subject, redRecords[1].Subject)
	for _, u := range e.World.Live {
		if u.Controller == "red" {
			assert.Equal(t, 0, u.Pos.Y, "U-%s must not take the late move", u.ID)
		}
	}
}
