package control

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

var errUnreachable = errors.New("transport unreachable")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeRoles struct {
	eligibility   int
	coordinator   bool
	nodeCount     int
	ruling        int64
	loading       int64
	sync          int64
	syncRequested bool
	peerJoined    bool
}

func (r *fakeRoles) CoordinatorEligibility() int { return r.eligibility }
func (r *fakeRoles) IsCoordinator() bool         { return r.coordinator }
func (r *fakeRoles) NodeCount() int              { return r.nodeCount }
func (r *fakeRoles) RulingEpoch() int64          { return r.ruling }
func (r *fakeRoles) ClearSyncRequests([]string) { r.syncRequested = false }

// SyncRequesters reports a single joiner while syncRequested is set.
func (r *fakeRoles) SyncRequesters() []string {
	if !r.syncRequested {
		return nil
	}
	return []string{"joiner"}
}

func (r *fakeRoles) LoadingAnnounced() (int64, bool) { return r.loading, r.loading > 0 }
func (r *fakeRoles) SyncAnnounced() (int64, bool)    { return r.sync, r.sync > 0 }

func (r *fakeRoles) TakePeerJoined() bool {
	joined := r.peerJoined
	r.peerJoined = false
	return joined
}

type introduction struct {
	epoch       int64
	coordinator bool
	ready       bool
}

type fakeAnnouncer struct {
	fail bool

	introductions []introduction
	loading       []int64
	syncRequests  []int64
	syncs         []int64
	syncTargets   [][]string
	aborts        []int64
}

func (a *fakeAnnouncer) Introduce(epoch int64, coordinator, ready bool) error {
	if a.fail {
		return errUnreachable
	}
	a.introductions = append(a.introductions, introduction{epoch, coordinator, ready})
	return nil
}

func (a *fakeAnnouncer) AnnounceLoading(epoch int64) error {
	if a.fail {
		return errUnreachable
	}
	a.loading = append(a.loading, epoch)
	return nil
}

func (a *fakeAnnouncer) RequestSync(epoch int64) error {
	if a.fail {
		return errUnreachable
	}
	a.syncRequests = append(a.syncRequests, epoch)
	return nil
}

func (a *fakeAnnouncer) AnnounceSync(epoch int64, targets []string) error {
	if a.fail {
		return errUnreachable
	}
	a.syncs = append(a.syncs, epoch)
	a.syncTargets = append(a.syncTargets, targets)
	return nil
}

func (a *fakeAnnouncer) SyncAbort(epoch int64) error {
	if a.fail {
		return errUnreachable
	}
	a.aborts = append(a.aborts, epoch)
	return nil
}

type fakeModel struct {
	epoch           int64
	notReady        bool
	loadingComplete bool
	syncComplete    bool
	syncDone        int64
	ccbsOpen        bool
}

func (m *fakeModel) AdjustEpoch(current int64) int64 {
	m.epoch = max(m.epoch, current) + 1
	return m.epoch
}

func (m *fakeModel) ReadyForLoading() bool              { return !m.notReady }
func (m *fakeModel) LoadingComplete() bool              { return m.loadingComplete }
func (m *fakeModel) SyncComplete(_ bool, _ uint64) bool { return m.syncComplete }
func (m *fakeModel) CcbsTerminated() bool               { return !m.ccbsOpen }
func (m *fakeModel) SyncDoneEpoch() int64               { return m.syncDone }

type fakeProcess struct {
	pid     int
	exited  bool
	signals []os.Signal
}

func (p *fakeProcess) Pid() int                   { return p.pid }
func (p *fakeProcess) Exited() (bool, error)      { return p.exited, nil }
func (p *fakeProcess) Signal(sig os.Signal) error { p.signals = append(p.signals, sig); return nil }

type fakeLauncher struct {
	launches    map[string]int
	procs       map[string]*fakeProcess
	exitAtStart bool
	fail        bool
}

func (l *fakeLauncher) Launch(name string, args []string) (transfer.Process, error) {
	if l.fail {
		return nil, errors.New("exec format error")
	}
	l.launches[name]++
	p := &fakeProcess{pid: 1000 + len(l.procs), exited: l.exitAtStart}
	l.procs[name] = p
	return p, nil
}

type fakeEpochs struct {
	loaded int64
	saved  []int64
	fail   bool
}

func (e *fakeEpochs) Load() int64 { return e.loaded }

func (e *fakeEpochs) Save(epoch int64) error {
	if e.fail {
		return errors.New("disk full")
	}
	e.saved = append(e.saved, epoch)
	return nil
}

type fakeSweeper struct {
	sweeps      int
	nudges      int
	coordinator []bool
}

func (s *fakeSweeper) CleanTheHouse(tick uint64, coordinator bool) {
	s.sweeps++
	s.coordinator = append(s.coordinator, coordinator)
}

func (s *fakeSweeper) AbortNonCriticalCcbs() int {
	s.nudges++
	return 0
}

type fakeBackend struct {
	checks int
}

func (b *fakeBackend) Check(coordinator bool, epoch int64) { b.checks++ }

type harness struct {
	cfg      Config
	clock    *fakeClock
	roles    *fakeRoles
	ann      *fakeAnnouncer
	model    *fakeModel
	launcher *fakeLauncher
	helpers  *transfer.Supervisor
	epochs   *fakeEpochs
	sweeper  *fakeSweeper
	backend  *fakeBackend
	node     *Node

	// states records every state a tick ended in.
	states []State
}

func testConfig() Config {
	return Config{
		TickInterval:          100 * time.Millisecond,
		ExpectedNodes:         2,
		WaitBudget:            5 * time.Second,
		IntroduceInterval:     time.Second,
		ClusterWaitCeiling:    30 * time.Second,
		SyncRequestGuard:      time.Second,
		LoadingPendingCeiling: 30 * time.Second,
		LoadingCeiling:        60 * time.Second,
		SyncRequestInterval:   2 * time.Second,
		SyncPendingCeiling:    60 * time.Second,
		SyncClientCeiling:     60 * time.Second,
		SyncBarrierTimeout:    3 * time.Second,
		SyncServerCeiling:     60 * time.Second,
		RepositoryDir:         "/var/lib/objectd",
		RepositoryFile:        "model.xml",
	}
}

func newHarness(setup func(h *harness)) *harness {
	h := &harness{
		cfg:      testConfig(),
		clock:    &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		roles:    &fakeRoles{},
		ann:      &fakeAnnouncer{},
		model:    &fakeModel{},
		launcher: &fakeLauncher{launches: map[string]int{}, procs: map[string]*fakeProcess{}},
		epochs:   &fakeEpochs{},
		sweeper:  &fakeSweeper{},
		backend:  &fakeBackend{},
	}
	if setup != nil {
		setup(h)
	}
	h.helpers = transfer.NewSupervisor(h.launcher,
		transfer.Names{Loader: "loader", SyncAgent: "sync", Backend: "pbe"},
		logging.NewNopLogger(), nil)
	h.node = NewNode(h.cfg, Deps{
		Roles:     h.roles,
		Announcer: h.ann,
		Model:     h.model,
		Helpers:   h.helpers,
		Epochs:    h.epochs,
		Sweeper:   h.sweeper,
		Backend:   h.backend,
		Logger:    logging.NewNopLogger(),
		Metrics:   metrics.NewRegistry(),
		Clock:     h.clock.Now,
	})
	return h
}

// step ticks once and advances the clock by one tick period.
func (h *harness) step() error {
	err := h.node.Tick()
	h.states = append(h.states, h.node.State())
	h.clock.Advance(h.cfg.TickInterval)
	return err
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.step())
}

// tickUntil ticks until the node reaches want, failing after limit ticks.
func (h *harness) tickUntil(t *testing.T, want State, limit int) {
	t.Helper()
	for i := 0; i < limit; i++ {
		if h.node.State() == want {
			return
		}
		h.tick(t)
	}
	require.Equal(t, want, h.node.State(), "state not reached in %d ticks", limit)
}

// advance moves the clock without ticking.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}

// path returns the distinct consecutive states visited, starting at Anonymous.
func (h *harness) path() []State {
	out := []State{StateAnonymous}
	for _, s := range h.states {
		if out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}

// readyCoordinator boots a coordinator through a fresh load to Ready at epoch 1.
func readyCoordinator(t *testing.T, setup func(h *harness)) *harness {
	t.Helper()
	h := newHarness(func(h *harness) {
		h.roles.eligibility = 1
		h.roles.coordinator = true
		h.roles.nodeCount = 2
		h.model.loadingComplete = true
		if setup != nil {
			setup(h)
		}
	})
	h.tickUntil(t, StateReady, 20)
	h.states = nil
	return h
}

func requireFatal(t *testing.T, err error, reason error) *FatalError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, reason)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	return fe
}
