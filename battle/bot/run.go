package bot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zgrow/robobattler/battle/transport"
)

// RunStream plays over a line stream: read an id, write a reply, read the
// result. It returns nil when the engine closes r.
func RunStream(ctx context.Context, r io.Reader, w io.Writer, b *Random) error {
	scanner := bufio.NewScanner(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		id, err := ParseUnitID(scanner.Text())
		if err != nil {
			return fmt.Errorf("bad unit id %q: %w", scanner.Text(), err)
		}
		reply := b.Reply(id)
		logrus.Debugf("U-%s -> %s", id, reply)
		if _, err := io.WriteString(w, reply+"\n"); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		logrus.Debugf("U-%s <- %s", id, scanner.Text())
	}
}

// RunFIFO opens the named pipe pair created by the engine and plays on it.
func RunFIFO(ctx context.Context, base string, b *Random) error {
	r, w, err := transport.DialFIFO(ctx, base)
	if err != nil {
		return err
	}
	defer r.Close()
	defer w.Close()
	return RunStream(ctx, r, w, b)
}

// RunQueue plays against an in-process queue until it is closed.
func RunQueue(ctx context.Context, q *transport.Queue, b *Random) error {
	for {
		id, err := q.NextID(ctx)
		if err != nil {
			return quietClose(err)
		}
		if err := q.Reply(ctx, b.Reply(id)); err != nil {
			return quietClose(err)
		}
		if _, err := q.Result(ctx); err != nil {
			return quietClose(err)
		}
	}
}

func quietClose(err error) error {
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

// DialWebSocket connects to url, e.g. ws://host:port/controller/red.
func DialWebSocket(ctx context.Context, url string) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		_ = conn.Close()
		return nil, fmt.Errorf("dial %s: unexpected status %d", url, resp.StatusCode)
	}
	return conn, nil
}

// RunWebSocket plays over conn until the engine closes it.
func RunWebSocket(ctx context.Context, conn *websocket.Conn, b *Random) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		id, err := ParseUnitID(string(msg))
		if err != nil {
			return fmt.Errorf("bad unit id %q: %w", msg, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(b.Reply(id))); err != nil {
			return err
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
	}
}
