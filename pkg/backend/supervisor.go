// Package backend keeps the durable export helper running while the
// repository mode asks for it.
package backend

import (
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/model"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

// Processes is the helper control the supervisor needs; *transfer.Supervisor
// satisfies it.
type Processes interface {
	StartBackend(daemon bool, path string) error
	Alive(kind transfer.Kind) bool
	Exited(kind transfer.Kind) (bool, error)
	StopRequested(kind transfer.Kind) bool
	Terminate(kind transfer.Kind) error
	Forget(kind transfer.Kind)
}

// ModeSource reports the repository mode.
type ModeSource interface {
	RepositoryInitMode() model.RepositoryMode
}

// Announcer tells the cluster a new durable image is being produced.
type Announcer interface {
	AnnounceDump(epoch int64) error
}

// Options configure the supervisor.
type Options struct {
	// Enabled is false when no durable export is configured.
	Enabled bool
	// Path is the backend file handed to the exporter.
	Path string
	// Daemon starts the exporter in daemon mode.
	Daemon bool
}

// Supervisor starts and stops the exporter from the control loop.
type Supervisor struct {
	procs     Processes
	mode      ModeSource
	announcer Announcer
	opts      Options
	logger    logging.Logger
}

// New creates a backend supervisor.
func New(procs Processes, mode ModeSource, a Announcer, opts Options, logger logging.Logger) *Supervisor {
	return &Supervisor{
		procs:     procs,
		mode:      mode,
		announcer: a,
		opts:      opts,
		logger:    logging.OrDefault(logger).With(logging.Component("backend")),
	}
}

// Check runs once per Ready tick. An observed exit is only recorded; a
// restart, if still wanted, happens on a later tick.
func (s *Supervisor) Check(coordinator bool, epoch int64) {
	if !s.opts.Enabled || !coordinator {
		return
	}

	if exited, err := s.procs.Exited(transfer.KindBackend); exited {
		if s.procs.StopRequested(transfer.KindBackend) {
			s.logger.Info("backend stopped")
		} else {
			s.logger.Warn("backend exited unexpectedly", logging.Error(err))
		}
		s.procs.Forget(transfer.KindBackend)
		return
	}

	running := s.procs.Alive(transfer.KindBackend)
	durable := s.mode.RepositoryInitMode() == model.KeepRepository

	switch {
	case !running && durable:
		if err := s.procs.StartBackend(s.opts.Daemon, s.opts.Path); err != nil {
			s.logger.Warn("backend start failed", logging.Error(err))
			return
		}
		if err := s.announcer.AnnounceDump(epoch); err != nil {
			s.logger.Warn("dump announcement failed", logging.Epoch(epoch), logging.Error(err))
		}
	case running && !durable && !s.procs.StopRequested(transfer.KindBackend):
		s.logger.Info("repository no longer durable, stopping backend")
		if err := s.procs.Terminate(transfer.KindBackend); err != nil {
			s.logger.Warn("backend terminate failed", logging.Error(err))
		}
	}
}
