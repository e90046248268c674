// Package status serves node health, the control snapshot, metrics and the
// completion reports of the transfer helpers over HTTP.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-objectd/pkg/cluster"
	"github.com/dd0wney/cluso-objectd/pkg/control"
	"github.com/dd0wney/cluso-objectd/pkg/health"
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/model"
)

const defaultShutdownTimeout = 5 * time.Second

// SnapshotSource publishes the control state.
type SnapshotSource interface {
	Snapshot() control.Snapshot
}

// Members lists the known cluster nodes.
type Members interface {
	GetAllNodes() []cluster.NodeInfo
}

// DoneAnnouncer broadcasts helper completion.
type DoneAnnouncer interface {
	LoadingDone(epoch int64) error
	SyncDone(epoch int64) error
}

// ModeStore reads and switches the repository mode.
type ModeStore interface {
	RepositoryInitMode() model.RepositoryMode
	SetRepositoryInitMode(mode model.RepositoryMode)
}

// Clients tracks client sessions for the reconciler.
type Clients interface {
	Register(client uint64)
	MarkStale(client uint64) bool
}

// Deps are the sources the server reads from.
type Deps struct {
	Node      SnapshotSource
	Members   Members
	Announcer DoneAnnouncer
	Modes     ModeStore
	Clients   Clients
	Metrics   *metrics.Registry
	Logger    logging.Logger

	// ExpectedNodes sets the membership check threshold.
	ExpectedNodes int
}

// Server is the status HTTP server.
type Server struct {
	Deps
	logger     logging.Logger
	health     *health.Checker
	addr       string
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		Deps:   deps,
		logger: logging.OrDefault(deps.Logger).With(logging.Component("status")),
		health: health.NewChecker(),
		addr:   addr,
	}
	s.registerChecks()
	return s
}

func (s *Server) registerChecks() {
	s.health.RegisterLivenessCheck("control", health.ControlCheck(s.controlState))
	s.health.RegisterReadinessCheck("state", health.StateCheck(control.StateReady.String(), s.controlState))
	s.health.RegisterCheck("helpers", health.HelperCheck(s.controlState))
	if s.Members != nil && s.ExpectedNodes > 0 {
		s.health.RegisterCheck("membership", health.MembershipCheck(s.ExpectedNodes, func() int {
			return len(s.Members.GetAllNodes())
		}))
	}
}

func (s *Server) controlState() health.ControlState {
	snap := s.Node.Snapshot()
	return health.ControlState{
		State:   snap.State,
		Epoch:   snap.Epoch,
		Fatal:   snap.Fatal,
		Helpers: snap.Helpers,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", s.health.HTTPHandler())
	r.Get("/healthz", s.health.LivenessHandler())
	r.Get("/readyz", s.health.ReadinessHandler())
	r.Get("/status", s.handleStatus)
	if s.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transfer/loader/done", s.handleLoaderDone)
		r.Post("/transfer/sync/done", s.handleSyncDone)
		r.Get("/repository/mode", s.handleGetMode)
		r.Put("/repository/mode", s.handleSetMode)
		r.Put("/clients/{id}", s.handleRegisterClient)
		r.Delete("/clients/{id}", s.handleDiscardClient)
	})
	return r
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", logging.Error(err))
		}
	}()

	s.logger.Info("status server started", logging.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown status server: %w", err)
	}
	return nil
}
