// Package transfer starts and watches the helper processes that move bulk
// model state in and out of the node.
package transfer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Process is a started helper.
type Process interface {
	Pid() int
	// Exited polls for termination without blocking.
	Exited() (bool, error)
	Signal(sig os.Signal) error
}

// Launcher starts helper executables by name with positional arguments.
type Launcher interface {
	Launch(name string, args []string) (Process, error)
}

// ExecLauncher runs helpers found next to the daemon binary or in Dir.
type ExecLauncher struct {
	Dir string
}

// NewExecLauncher resolves relative helper names against dir, or against the
// directory of the running executable when dir is empty.
func NewExecLauncher(dir string) (*ExecLauncher, error) {
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		dir = filepath.Dir(exe)
	}
	return &ExecLauncher{Dir: dir}, nil
}

// Resolve returns the path a helper name is started from.
func (l *ExecLauncher) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.Dir, name)
}

// Launch starts the helper. Its output goes to the daemon's stdout and stderr.
func (l *ExecLauncher) Launch(name string, args []string) (Process, error) {
	cmd := exec.Command(l.Resolve(name), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	go func() {
		p.done <- cmd.Wait()
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan error

	mu     sync.Mutex
	exited bool
	err    error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return true, p.err
	}
	select {
	case err := <-p.done:
		p.exited, p.err = true, err
		return true, err
	default:
		return false, nil
	}
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}
