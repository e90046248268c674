package transfer

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
)

// Kind identifies a helper.
type Kind int

const (
	KindLoader Kind = iota
	KindSyncAgent
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindLoader:
		return "loader"
	case KindSyncAgent:
		return "sync_agent"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

var (
	ErrSpawn          = errors.New("helper spawn failed")
	ErrAlreadyRunning = errors.New("helper already running")
	ErrNotRunning     = errors.New("helper not running")
)

// Names are the executable names of the helpers.
type Names struct {
	Loader    string
	SyncAgent string
	Backend   string
}

// Handle tracks one started helper. Pid is cleared to 0 once the exit is seen.
type Handle struct {
	Kind    Kind
	Pid     int
	Started time.Time
	ExitErr error

	proc          Process
	done          func() bool
	exited        bool
	complete      bool
	stopRequested bool
}

// Supervisor owns the helper handles. It is driven from the control loop and
// is not safe for concurrent use.
type Supervisor struct {
	launcher Launcher
	names    Names
	handles  map[Kind]*Handle
	now      func() time.Time

	logger  logging.Logger
	metrics *metrics.Registry
}

// NewSupervisor creates a supervisor that starts helpers through l.
func NewSupervisor(l Launcher, names Names, logger logging.Logger, reg *metrics.Registry) *Supervisor {
	return &Supervisor{
		launcher: l,
		names:    names,
		handles:  make(map[Kind]*Handle),
		now:      time.Now,
		logger:   logging.OrDefault(logger).With(logging.Component("transfer")),
		metrics:  reg,
	}
}

// StartLoader starts the loader on the repository file. done reports
// whether the node has ingested everything the loader sent.
func (s *Supervisor) StartLoader(dir, file string, done func() bool) error {
	return s.start(KindLoader, s.names.Loader, []string{dir, file}, done)
}

// StartSyncAgent starts the sync agent that streams state to joining nodes.
func (s *Supervisor) StartSyncAgent(done func() bool) error {
	return s.start(KindSyncAgent, s.names.SyncAgent, []string{"sync"}, done)
}

// StartBackend starts the durable export helper on the backend file.
func (s *Supervisor) StartBackend(daemon bool, path string) error {
	mode := "--foreground"
	if daemon {
		mode = "--daemon"
	}
	return s.start(KindBackend, s.names.Backend, []string{mode, path}, nil)
}

func (s *Supervisor) start(kind Kind, name string, args []string, done func() bool) error {
	if s.Alive(kind) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, kind)
	}

	proc, err := s.launcher.Launch(name, args)
	s.metrics.RecordHelperSpawn(kind.String(), err)
	if err != nil {
		s.logger.Error("helper spawn failed", logging.Helper(kind.String()), logging.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrSpawn, kind, err)
	}

	s.handles[kind] = &Handle{
		Kind:    kind,
		Pid:     proc.Pid(),
		Started: s.now(),
		proc:    proc,
		done:    done,
	}
	s.logger.Info("helper started",
		logging.Helper(kind.String()),
		logging.Pid(proc.Pid()),
		logging.Any("args", args))
	return nil
}

// Reap polls every running helper and records exits.
func (s *Supervisor) Reap() {
	for kind, h := range s.handles {
		if h.Pid == 0 {
			continue
		}
		exited, err := h.proc.Exited()
		if !exited {
			continue
		}
		s.metrics.RecordHelperExit(kind.String(), err)
		s.logger.Info("helper exited",
			logging.Helper(kind.String()),
			logging.Pid(h.Pid),
			logging.Elapsed(s.now().Sub(h.Started)),
			logging.Error(err))
		h.Pid = 0
		h.exited = true
		h.ExitErr = err
	}
}

// Alive reports whether the helper is started and not yet reaped.
func (s *Supervisor) Alive(kind Kind) bool {
	h := s.handles[kind]
	return h != nil && h.Pid != 0
}

// Complete reports whether the helper's output has been consumed. Once true
// it stays true for the handle, regardless of whether the process exited.
func (s *Supervisor) Complete(kind Kind) bool {
	h := s.handles[kind]
	if h == nil {
		return false
	}
	if !h.complete && h.done != nil && h.done() {
		h.complete = true
	}
	return h.complete
}

// Exited reports whether an exit was reaped, and with which error.
func (s *Supervisor) Exited(kind Kind) (bool, error) {
	h := s.handles[kind]
	if h == nil || !h.exited {
		return false, nil
	}
	return true, h.ExitErr
}

// Terminate asks the helper to stop with SIGTERM.
func (s *Supervisor) Terminate(kind Kind) error {
	return s.signal(kind, syscall.SIGTERM)
}

// Kill stops the helper with SIGKILL.
func (s *Supervisor) Kill(kind Kind) error {
	return s.signal(kind, syscall.SIGKILL)
}

func (s *Supervisor) signal(kind Kind, sig os.Signal) error {
	h := s.handles[kind]
	if h == nil || h.Pid == 0 {
		return fmt.Errorf("%w: %s", ErrNotRunning, kind)
	}
	h.stopRequested = true
	if err := h.proc.Signal(sig); err != nil {
		return fmt.Errorf("signal %s: %w", kind, err)
	}
	return nil
}

// StopRequested reports whether Terminate or Kill was called on the handle.
func (s *Supervisor) StopRequested(kind Kind) bool {
	h := s.handles[kind]
	return h != nil && h.stopRequested
}

// Forget drops the handle so the helper can be started again.
func (s *Supervisor) Forget(kind Kind) {
	delete(s.handles, kind)
}

// Pid returns the helper's pid, or 0 when it is not running.
func (s *Supervisor) Pid(kind Kind) int {
	if h := s.handles[kind]; h != nil {
		return h.Pid
	}
	return 0
}

// Started returns when the helper was started.
func (s *Supervisor) Started(kind Kind) time.Time {
	if h := s.handles[kind]; h != nil {
		return h.Started
	}
	return time.Time{}
}

// Pids returns the pid of every running helper keyed by name.
func (s *Supervisor) Pids() map[string]int {
	pids := make(map[string]int)
	for kind, h := range s.handles {
		if h.Pid != 0 {
			pids[kind.String()] = h.Pid
		}
	}
	return pids
}
