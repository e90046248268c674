package control

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

// Deps are the collaborators of a Node.
type Deps struct {
	Roles     Roles
	Announcer Announcer
	Model     Model
	Helpers   Helpers
	Epochs    EpochStore
	Sweeper   Sweeper
	Backend   BackendChecker

	Logger  logging.Logger
	Metrics *metrics.Registry
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Snapshot is the state published after every tick.
type Snapshot struct {
	State       string         `json:"state"`
	Epoch       int64          `json:"epoch"`
	Target      int64          `json:"target_epoch"`
	RulingEpoch int64          `json:"ruling_epoch"`
	Coordinator bool           `json:"coordinator"`
	Tick        uint64         `json:"tick"`
	Since       time.Time      `json:"since"`
	Helpers     map[string]int `json:"helpers,omitempty"`
	Fatal       string         `json:"fatal,omitempty"`
}

// Node owns the control state. Tick must only be called from one goroutine;
// Snapshot may be read from anywhere.
type Node struct {
	cfg Config
	Deps
	logger logging.Logger
	now    func() time.Time

	state      State
	epoch      int64
	target     int64
	tick       uint64
	stateTicks uint64
	stateSince time.Time
	lastSend   time.Time

	coordinator bool
	ruling      int64

	loaderStarted    bool
	phase            syncPhase
	phaseSince       time.Time
	lastNudge        time.Time
	introducePending bool
	finalized        uint64

	dead     *FatalError
	snapshot atomic.Pointer[Snapshot]
}

// NewNode creates a node at Anonymous with the persisted epoch.
func NewNode(cfg Config, deps Deps) *Node {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	n := &Node{
		cfg:    cfg,
		Deps:   deps,
		logger: logging.OrDefault(deps.Logger).With(logging.Component("control")),
		now:    clock,
		state:  StateAnonymous,
		epoch:  deps.Epochs.Load(),
	}
	n.stateSince = n.now()
	n.publish()
	n.Metrics.SetControlState(n.state.String(), StateNames())
	n.logger.Info("node starting", logging.Epoch(n.epoch))
	return n
}

// State returns the current state. Only safe on the ticking goroutine.
func (n *Node) State() State {
	return n.state
}

// Epoch returns NodeEpoch.
func (n *Node) Epoch() int64 {
	return n.epoch
}

// Snapshot returns the state published by the last tick.
func (n *Node) Snapshot() Snapshot {
	return *n.snapshot.Load()
}

// Tick advances the state machine by one step. A non-nil error is always a
// *FatalError and every later call returns it again.
func (n *Node) Tick() error {
	if n.dead != nil {
		return n.dead
	}
	start := n.now()
	n.tick++
	n.stateTicks++

	n.Helpers.Reap()
	if err := n.step(); err != nil {
		n.die(err)
	}

	n.publish()
	n.Metrics.ObserveTick(n.now().Sub(start))
	if n.dead != nil {
		return n.dead
	}
	return nil
}

func (n *Node) step() *FatalError {
	n.coordinator = n.Roles.IsCoordinator()
	n.ruling = n.Roles.RulingEpoch()
	n.Metrics.UpdateEpochs(n.epoch, n.ruling, n.coordinator)

	if n.coordinator && n.ruling > n.epoch {
		return fatal(n.state, ErrEpochInvariant, "ruling epoch %d, node epoch %d", n.ruling, n.epoch)
	}

	switch n.state {
	case StateAnonymous:
		return n.anonymous()
	case StateClusterWaiting:
		return n.clusterWaiting()
	case StateLoadingPending:
		return n.loadingPending()
	case StateLoadingServer:
		return n.loadingServer()
	case StateLoadingClient:
		return n.loadingClient()
	case StateSyncPending:
		return n.syncPending()
	case StateSyncClient:
		return n.syncClient()
	case StateSyncServer:
		return n.syncServer()
	case StateReady:
		return n.ready()
	}
	return nil
}

func (n *Node) transition(to State) {
	from := n.state
	n.state = to
	n.stateTicks = 0
	n.stateSince = n.now()
	n.Metrics.RecordTransition(from.String(), to.String())
	n.Metrics.SetControlState(to.String(), StateNames())
	n.logger.Info("state transition",
		logging.String("from", from.String()),
		logging.State(to.String()),
		logging.Epoch(n.epoch),
		logging.Tick(n.tick))
}

// inState is the time spent in the current state.
func (n *Node) inState() time.Duration {
	return n.now().Sub(n.stateSince)
}

// sendDue reports whether a periodic resend is due and, if so, records it.
func (n *Node) sendDue(interval time.Duration) bool {
	now := n.now()
	if !n.lastSend.IsZero() && now.Sub(n.lastSend) < interval {
		return false
	}
	n.lastSend = now
	return true
}

// advance raises NodeEpoch; it never lowers it.
func (n *Node) advance(epoch int64) {
	if epoch > n.epoch {
		n.epoch = epoch
	}
}

// finalize ratchets the epoch after a load or sync, persists it and
// introduces the node again with the new value.
func (n *Node) finalize(target int64) *FatalError {
	n.advance(target)
	if err := n.Epochs.Save(n.epoch); err != nil {
		return fatal(n.state, ErrEpochPersist, "%v", err)
	}
	n.finalized++
	n.logger.Info("epoch finalized", logging.Epoch(n.epoch))

	n.introducePending = true
	n.introduceReady()
	n.transition(StateReady)
	return nil
}

// introduceReady sends the post-finalize introduction, keeping it pending
// on failure.
func (n *Node) introduceReady() {
	if err := n.Announcer.Introduce(n.epoch, n.coordinator, true); err != nil {
		n.logger.Debug("introduce failed, will retry", logging.Error(err))
		return
	}
	n.introducePending = false
}

func (n *Node) die(err *FatalError) {
	n.dead = err
	for _, kind := range []transfer.Kind{transfer.KindLoader, transfer.KindSyncAgent} {
		if n.Helpers.Alive(kind) {
			if terr := n.Helpers.Terminate(kind); terr != nil && !errors.Is(terr, transfer.ErrNotRunning) {
				n.logger.Warn("terminate on fatal failed", logging.Helper(kind.String()), logging.Error(terr))
			}
		}
	}
	n.Metrics.RecordFatal(err.Label())
	n.logger.Error("fatal", logging.State(err.State.String()), logging.Epoch(n.epoch), logging.Error(err))
}

func (n *Node) publish() {
	s := &Snapshot{
		State:       n.state.String(),
		Epoch:       n.epoch,
		Target:      n.target,
		RulingEpoch: n.ruling,
		Coordinator: n.coordinator,
		Tick:        n.tick,
		Since:       n.stateSince,
		Helpers:     n.Helpers.Pids(),
	}
	if n.dead != nil {
		s.Fatal = n.dead.Error()
	}
	n.snapshot.Store(s)
}
