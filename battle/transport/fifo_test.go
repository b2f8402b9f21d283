package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFIFO_ExchangeAndCleanup(t *testing.T) {
	// GIVEN an engine opening a pipe pair and a bot dialing it
	base := filepath.Join(t.TempDir(), "red")
	ctx := testCtx(t)
	opened := make(chan *Stream, 1)
	go func() {
		s, err := OpenFIFO(ctx, "red", base)
		if err != nil {
			close(opened)
			return
		}
		opened <- s
	}()
	require.Eventually(t, func() bool {
		reqPath, respPath := FIFOPaths(base)
		_, errReq := os.Stat(reqPath)
		_, errResp := os.Stat(respPath)
		return errReq == nil && errResp == nil
	}, time.Second, 5*time.Millisecond)

	r, w, err := DialFIFO(ctx, base)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	s, ok := <-opened
	require.True(t, ok, "OpenFIFO failed")

	// WHEN one exchange runs
	go func() {
		sc := bufio.NewScanner(r)
		if sc.Scan() {
			_, _ = io.WriteString(w, "0x0001"+sc.Text()+"00\n")
		}
	}()
	require.NoError(t, s.SendID(ctx, 0x0042))
	code, err := s.ReceiveBytecode(ctx)

	// THEN the reply arrives and Close removes the pipes
	require.NoError(t, err)
	assert.Equal(t, "0x0001004200", code)
	require.NoError(t, s.Close())
	reqPath, _ := FIFOPaths(base)
	_, err = os.Stat(reqPath)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenFIFO_NoBotTimesOut(t *testing.T) {
	base := filepath.Join(t.TempDir(), "blue")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := OpenFIFO(ctx, "blue", base)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, Cleanup(base))
	assert.NoError(t, Cleanup(base), "missing pipes are fine")
}

func TestMakeFIFOs_Idempotent(t *testing.T) {
	base := filepath.Join(t.TempDir(), "x")
	require.NoError(t, MakeFIFOs(base))
	require.NoError(t, MakeFIFOs(base))
	reqPath, _ := FIFOPaths(base)
	fi, err := os.Stat(reqPath)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeNamedPipe)
}

func TestOpenWithContext_ExpiryLeavesNoPendingOpen(t *testing.T) {
	// GIVEN a pipe nobody writes to
	base := filepath.Join(t.TempDir(), "green")
	require.NoError(t, MakeFIFOs(base))
	_, respPath := FIFOPaths(base)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// WHEN a read open gives up
	_, err := openWithContext(ctx, respPath, os.O_RDONLY)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// THEN no reader is left holding the pipe
	f, err := os.OpenFile(respPath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if f != nil {
		_ = f.Close()
	}
	assert.ErrorIs(t, err, unix.ENXIO)
}
