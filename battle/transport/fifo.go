package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zgrow/robobattler/battle"
)

// FIFOPaths returns the request (engine -> bot) and response (bot -> engine)
// pipe paths derived from base.
func FIFOPaths(base string) (reqPath, respPath string) {
	return base + ".req", base + ".resp"
}

// MakeFIFOs creates the named pipe pair for base unless it already exists.
func MakeFIFOs(base string) error {
	reqPath, respPath := FIFOPaths(base)
	for _, p := range []string{reqPath, respPath} {
		if _, err := os.Stat(p); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := unix.Mkfifo(p, 0o600); err != nil {
			return fmt.Errorf("mkfifo %s: %w", p, err)
		}
		logrus.Debugf("created pipe %s", p)
	}
	return nil
}

// OpenFIFO creates the pipe pair for base and opens the engine's ends. It
// blocks until the bot opens its ends or ctx expires. Close removes the pipes.
func OpenFIFO(ctx context.Context, name, base string) (*Stream, error) {
	if err := MakeFIFOs(base); err != nil {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	reqPath, respPath := FIFOPaths(base)
	logrus.Infof("waiting for %s on %s / %s", name, reqPath, respPath)

	reqFile, err := openWithContext(ctx, reqPath, os.O_WRONLY)
	if err != nil {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	respFile, err := openWithContext(ctx, respPath, os.O_RDONLY)
	if err != nil {
		_ = reqFile.Close()
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	return NewStream(name, respFile, reqFile, reqFile, respFile, removeFiles{reqPath, respPath}), nil
}

// DialFIFO opens the bot's ends of an existing pipe pair, in the order that
// matches OpenFIFO. The returned files are the bot's reader and writer.
func DialFIFO(ctx context.Context, base string) (r *os.File, w *os.File, err error) {
	reqPath, respPath := FIFOPaths(base)
	r, err = openWithContext(ctx, reqPath, os.O_RDONLY)
	if err != nil {
		return nil, nil, err
	}
	w, err = openWithContext(ctx, respPath, os.O_WRONLY)
	if err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	return r, w, nil
}

// openWithContext opens a FIFO, which blocks until the peer opens the other
// end. If ctx expires first, the pending open is released by opening the
// pipe read-write, and its file is closed.
func openWithContext(ctx context.Context, path string, flag int) (*os.File, error) {
	type opened struct {
		f   *os.File
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		f, err := os.OpenFile(path, flag, 0)
		ch <- opened{f: f, err: err}
	}()
	select {
	case o := <-ch:
		return o.f, o.err
	case <-ctx.Done():
		reap := func() {
			if o := <-ch; o.f != nil {
				_ = o.f.Close()
			}
		}
		// Holding both ends lets the pending open complete, whether or
		// not it has reached the kernel yet.
		both, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
		if err != nil {
			logrus.Debugf("releasing %s: %v", path, err)
			go reap()
			return nil, ctx.Err()
		}
		reap()
		_ = both.Close()
		return nil, ctx.Err()
	}
}

// Cleanup removes the pipe pair for base. Missing files are not an error.
func Cleanup(base string) error {
	reqPath, respPath := FIFOPaths(base)
	return removeFiles{reqPath, respPath}.Close()
}

// removeFiles deletes the pipe files on Close.
type removeFiles []string

func (rf removeFiles) Close() error {
	var errs []error
	for _, p := range rf {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
