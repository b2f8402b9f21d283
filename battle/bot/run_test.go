package bot

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgrow/robobattler/battle"
	"github.com/zgrow/robobattler/battle/transport"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func smallMatch() battle.MatchConfig {
	cfg := battle.DefaultMatchConfig()
	cfg.GridSide = 6
	cfg.ArmySize = 3
	cfg.MaxRounds = 4
	cfg.RequestTimeout = time.Second
	return cfg
}

func TestRunStream_AnswersEachIDAndSkipsResults(t *testing.T) {
	// GIVEN two requests with their results
	in := strings.NewReader("0001\nTrue\n00aa\n(1, 2)\n")
	var out bytes.Buffer

	// WHEN the bot plays the stream to its end
	err := RunStream(testCtx(t), in, &out, NewRandomSeeded(1))

	// THEN one reply line per id was written
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	req, err := battle.Decode(lines[1])
	require.NoError(t, err)
	assert.Equal(t, "00aa", req.Unit)
}

func TestRunStream_BadID(t *testing.T) {
	err := RunStream(testCtx(t), strings.NewReader("hello\n"), &bytes.Buffer{}, NewRandomSeeded(1))
	assert.Error(t, err)
}

func TestRunQueue_PlaysFullMatch(t *testing.T) {
	// GIVEN two random bots on in-memory queues
	ctx := testCtx(t)
	red, blue := transport.NewQueue("red"), transport.NewQueue("blue")
	errs := make(chan error, 2)
	go func() { errs <- RunQueue(ctx, red, NewRandomSeeded(1)) }()
	go func() { errs <- RunQueue(ctx, blue, NewRandomSeeded(2)) }()

	e, err := battle.NewEngine(smallMatch(), []battle.Controller{red, blue})
	require.NoError(t, err)

	// WHEN the match runs
	summary, err := e.Run(ctx)

	// THEN it ends cleanly and both bots stop when their queue closes
	require.NoError(t, err)
	assert.Equal(t, battle.ModeShutdown, e.Mode())
	assert.LessOrEqual(t, summary.Turns, 4)
	assert.Empty(t, summary.Forfeits)
	assert.NoError(t, <-errs)
	assert.NoError(t, <-errs)
}

func TestRunWebSocket_PlaysFullMatch(t *testing.T) {
	// GIVEN a websocket server with two bots connected
	ctx := testCtx(t)
	server := transport.NewWSServer("red", "blue")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + transport.ControllerPath

	errs := make(chan error, 2)
	for i, name := range []string{"red", "blue"} {
		conn, err := DialWebSocket(ctx, base+name)
		require.NoError(t, err)
		defer conn.Close()
		go func(seed int64) { errs <- RunWebSocket(ctx, conn, NewRandomSeeded(seed)) }(int64(i))
	}
	red, err := server.Accept(ctx, "red")
	require.NoError(t, err)
	blue, err := server.Accept(ctx, "blue")
	require.NoError(t, err)

	e, err := battle.NewEngine(smallMatch(), []battle.Controller{red, blue})
	require.NoError(t, err)

	// WHEN the match runs
	summary, err := e.Run(ctx)

	// THEN no unit was forfeited and both bots saw a normal close
	require.NoError(t, err)
	assert.Empty(t, summary.Forfeits)
	assert.NoError(t, <-errs)
	assert.NoError(t, <-errs)
}

func TestDialWebSocket_Refused(t *testing.T) {
	server := transport.NewWSServer("red")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	_, err := DialWebSocket(testCtx(t), "ws"+strings.TrimPrefix(ts.URL, "http")+transport.ControllerPath+"blue")
	assert.Error(t, err)
}
