package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zgrow/robobattler/battle"
)

// processGrace is how long a bot may take to exit after its stdin closes.
const processGrace = 2 * time.Second

// StartProcess launches a bot executable and speaks the line protocol over
// its stdin and stdout. The bot's stderr is passed through.
func StartProcess(ctx context.Context, name string, argv []string) (*Stream, error) {
	if len(argv) == 0 {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: fmt.Errorf("empty command")}
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &battle.TransportError{Controller: name, Op: "open", Err: err}
	}
	logrus.Infof("started %s: %v (pid %d)", name, argv, cmd.Process.Pid)
	return NewStream(name, stdout, stdin, stdin, &processCloser{name: name, cmd: cmd}), nil
}

type processCloser struct {
	name string
	cmd  *exec.Cmd
}

// Close waits for the bot to exit on its own, then kills it.
func (p *processCloser) Close() error {
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			logrus.Debugf("%s exited: %v", p.name, err)
		}
		return nil
	case <-time.After(processGrace):
		logrus.Warnf("%s did not exit, killing it", p.name)
		_ = p.cmd.Process.Kill()
		<-done
		return nil
	}
}
