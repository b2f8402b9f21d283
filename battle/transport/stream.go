package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/zgrow/robobattler/battle"
)

// Stream is a Controller over a pair of byte streams carrying one message
// per line: the engine writes ids and results to w and reads bytecode from r.
type Stream struct {
	name    string
	w       io.Writer
	in      *inbox
	closers []io.Closer

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStream starts reading r in the background. closers are closed, in
// order, by Close.
func NewStream(name string, r io.Reader, w io.Writer, closers ...io.Closer) *Stream {
	s := &Stream{
		name:    name,
		w:       w,
		in:      newInbox(name),
		closers: closers,
		done:    make(chan struct{}),
	}
	go s.pump(r)
	return s
}

func (s *Stream) pump(r io.Reader) {
	defer close(s.in.lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !s.in.deliver(lineResult{line: scanner.Text()}, s.done) {
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.in.deliver(lineResult{err: err}, s.done)
}

// Name returns the controller name.
func (s *Stream) Name() string { return s.name }

// SendID writes the unit id line after discarding stale replies.
func (s *Stream) SendID(ctx context.Context, id battle.UnitID) error {
	s.in.drain()
	if s.in.err != nil {
		return &battle.TransportError{Controller: s.name, Op: "send-id", Err: s.in.err}
	}
	return s.writeLine(ctx, "send-id", id.String())
}

// ReceiveBytecode waits for the next reply line.
func (s *Stream) ReceiveBytecode(ctx context.Context) (string, error) {
	return s.in.receive(ctx)
}

// SendResult writes the result line.
func (s *Stream) SendResult(ctx context.Context, result string) error {
	return s.writeLine(ctx, "send-result", result)
}

func (s *Stream) writeLine(ctx context.Context, op, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return &battle.TransportError{Controller: s.name, Op: op, Err: ErrClosed}
	default:
	}
	if _, err := io.WriteString(s.w, line+"\n"); err != nil {
		return &battle.TransportError{Controller: s.name, Op: op, Err: err}
	}
	return nil
}

// Close stops the pump and closes the underlying resources.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// ErrClosed is the cause of TransportErrors returned after Close.
var ErrClosed = errors.New("controller closed")
