// Package transport provides Controller implementations for the battle
// engine: line streams (FIFO pairs, child processes), websockets and
// in-memory queues.
//
// Every transport reads the bot's replies on a background pump so that
// ReceiveBytecode can honor the engine's per-request deadline without
// corrupting the underlying connection.
package transport

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/zgrow/robobattler/battle"
)

type lineResult struct {
	line string
	err  error
}

// inbox buffers lines produced by a pump goroutine. The pump closes lines
// after delivering its terminal error. Once an error is seen it sticks.
type inbox struct {
	name  string
	lines chan lineResult
	err   error
}

func newInbox(name string) *inbox {
	return &inbox{name: name, lines: make(chan lineResult, 16)}
}

// receive blocks until a line, a terminal error or ctx expiry.
func (in *inbox) receive(ctx context.Context) (string, error) {
	if in.err != nil {
		return "", &battle.TransportError{Controller: in.name, Op: "receive", Err: in.err}
	}
	select {
	case res, ok := <-in.lines:
		if !ok {
			res.err = io.EOF
		}
		if res.err != nil {
			in.err = res.err
			return "", &battle.TransportError{Controller: in.name, Op: "receive", Err: res.err}
		}
		return res.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drain discards replies that arrived after their request timed out, so a
// late answer is never taken for the next unit's action.
func (in *inbox) drain() {
	for {
		select {
		case res, ok := <-in.lines:
			if !ok {
				if in.err == nil {
					in.err = io.EOF
				}
				return
			}
			if res.err != nil {
				in.err = res.err
				return
			}
			logrus.Debugf("%s: discarding stale reply %q", in.name, res.line)
		default:
			return
		}
	}
}

// deliver is called by pumps. It returns false when the consumer is gone.
func (in *inbox) deliver(res lineResult, done <-chan struct{}) bool {
	select {
	case in.lines <- res:
		return true
	case <-done:
		return false
	}
}
