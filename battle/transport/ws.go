package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zgrow/robobattler/battle"
)

// ControllerPath is the route a bot connects to, e.g. /controller/blue.
const ControllerPath = "/controller/"

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSServer accepts one websocket connection per named controller slot.
type WSServer struct {
	mu    sync.Mutex
	slots map[string]chan *websocket.Conn
	taken map[string]bool
}

// NewWSServer reserves a slot for each controller name.
func NewWSServer(names ...string) *WSServer {
	s := &WSServer{
		slots: make(map[string]chan *websocket.Conn, len(names)),
		taken: make(map[string]bool, len(names)),
	}
	for _, n := range names {
		s.slots[n] = make(chan *websocket.Conn, 1)
	}
	return s
}

// Handler returns the HTTP handler serving ControllerPath.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ControllerPath, s.serveController)
	return mux
}

func (s *WSServer) serveController(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, ControllerPath)
	s.mu.Lock()
	slot, ok := s.slots[name]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "unknown controller", http.StatusNotFound)
		return
	}
	if s.taken[name] {
		s.mu.Unlock()
		http.Error(w, "controller already connected", http.StatusConflict)
		return
	}
	s.taken[name] = true
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("upgrade %s: %v", name, err)
		s.mu.Lock()
		s.taken[name] = false
		s.mu.Unlock()
		return
	}
	logrus.Infof("controller %s connected from %s", name, r.RemoteAddr)
	slot <- conn
}

// Accept waits for the named controller to connect.
func (s *WSServer) Accept(ctx context.Context, name string) (*WSController, error) {
	s.mu.Lock()
	slot, ok := s.slots[name]
	s.mu.Unlock()
	if !ok {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: fmt.Errorf("no slot for %q", name)}
	}
	select {
	case conn := <-slot:
		return NewWSController(name, conn), nil
	case <-ctx.Done():
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: ctx.Err()}
	}
}

// WSController is a Controller over a websocket. Each message is one line
// of the protocol.
type WSController struct {
	name string
	conn *websocket.Conn
	in   *inbox

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWSController wraps an established connection and starts its pump.
func NewWSController(name string, conn *websocket.Conn) *WSController {
	c := &WSController{
		name: name,
		conn: conn,
		in:   newInbox(name),
		done: make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *WSController) pump() {
	defer close(c.in.lines)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.in.deliver(lineResult{err: err}, c.done)
			return
		}
		if !c.in.deliver(lineResult{line: strings.TrimSpace(string(msg))}, c.done) {
			return
		}
	}
}

// Name returns the controller name.
func (c *WSController) Name() string { return c.name }

// SendID sends the unit id after discarding stale replies.
func (c *WSController) SendID(ctx context.Context, id battle.UnitID) error {
	c.in.drain()
	if c.in.err != nil {
		return &battle.TransportError{Controller: c.name, Op: "send-id", Err: c.in.err}
	}
	return c.write(ctx, "send-id", id.String())
}

// ReceiveBytecode waits for the next message.
func (c *WSController) ReceiveBytecode(ctx context.Context) (string, error) {
	return c.in.receive(ctx)
}

// SendResult sends the result message.
func (c *WSController) SendResult(ctx context.Context, result string) error {
	return c.write(ctx, "send-result", result)
}

func (c *WSController) write(ctx context.Context, op, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return &battle.TransportError{Controller: c.name, Op: op, Err: ErrClosed}
	default:
	}
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return &battle.TransportError{Controller: c.name, Op: op, Err: err}
	}
	return nil
}

// Close sends a close frame and drops the connection.
func (c *WSController) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match over"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
