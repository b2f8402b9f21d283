package transport

import (
	"context"
	"sync"

	"github.com/zgrow/robobattler/battle"
)

// Queue is an in-process Controller. The engine uses the Controller methods;
// an embedded bot uses NextID, Reply and Result.
type Queue struct {
	name    string
	ids     chan battle.UnitID
	codes   chan string
	results chan string

	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates an open queue.
func NewQueue(name string) *Queue {
	return &Queue{
		name:    name,
		ids:     make(chan battle.UnitID, 1),
		codes:   make(chan string, 1),
		results: make(chan string, 1),
		closed:  make(chan struct{}),
	}
}

// Name returns the controller name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *Queue) closedErr(op string) error {
	return &battle.TransportError{Controller: q.name, Op: op, Err: ErrClosed}
}

// SendID hands a unit id to the bot, discarding any reply left over from
// a timed-out request.
func (q *Queue) SendID(ctx context.Context, id battle.UnitID) error {
	if q.isClosed() {
		return q.closedErr("send-id")
	}
	select {
	case <-q.codes:
	default:
	}
	select {
	case q.ids <- id:
		return nil
	case <-q.closed:
		return q.closedErr("send-id")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveBytecode waits for the bot's reply.
func (q *Queue) ReceiveBytecode(ctx context.Context) (string, error) {
	select {
	case code := <-q.codes:
		return code, nil
	case <-q.closed:
		return "", q.closedErr("receive")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SendResult hands the result to the bot.
func (q *Queue) SendResult(ctx context.Context, result string) error {
	if q.isClosed() {
		return q.closedErr("send-result")
	}
	select {
	case q.results <- result:
		return nil
	case <-q.closed:
		return q.closedErr("send-result")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects both sides. Safe to call more than once.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}

// NextID blocks until the engine asks about a unit.
func (q *Queue) NextID(ctx context.Context) (battle.UnitID, error) {
	select {
	case id := <-q.ids:
		return id, nil
	case <-q.closed:
		return 0, q.closedErr("next-id")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Reply sends the bot's bytecode for the pending unit.
func (q *Queue) Reply(ctx context.Context, code string) error {
	select {
	case q.codes <- code:
		return nil
	case <-q.closed:
		return q.closedErr("reply")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result waits for the outcome of the last reply.
func (q *Queue) Result(ctx context.Context) (string, error) {
	select {
	case r := <-q.results:
		return r, nil
	case <-q.closed:
		return "", q.closedErr("result")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
