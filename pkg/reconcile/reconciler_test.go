package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/model"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

type fakeModel struct {
	implementers map[uint64]uint32
	ccbs         map[uint64][]uint32
	owners       map[uint64][]uint32
	nonCritical  []uint32
	discarded    []uint32
	marked       []uint32

	expiredAdmin  []uint64
	expiredSearch []uint64
	expiredCcbs   []uint32
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		implementers: make(map[uint64]uint32),
		ccbs:         make(map[uint64][]uint32),
		owners:       make(map[uint64][]uint32),
	}
}

func (m *fakeModel) CleanTheBasement(tick uint64) ([]uint64, []uint64, []uint32) {
	a, s, c := m.expiredAdmin, m.expiredSearch, m.expiredCcbs
	m.expiredAdmin, m.expiredSearch, m.expiredCcbs = nil, nil, nil
	return a, s, c
}

func (m *fakeModel) MarkCcbAborted(id uint32) { m.marked = append(m.marked, id) }

func (m *fakeModel) ImplementerID(client uint64) (uint32, bool) {
	id, ok := m.implementers[client]
	return id, ok
}

func (m *fakeModel) DiscardImplementer(id uint32) {
	m.discarded = append(m.discarded, id)
	for c, impl := range m.implementers {
		if impl == id {
			delete(m.implementers, c)
		}
	}
}

func (m *fakeModel) CcbIDsForClient(client uint64) []uint32        { return m.ccbs[client] }
func (m *fakeModel) AdminOwnerIDsForClient(client uint64) []uint32 { return m.owners[client] }
func (m *fakeModel) NonCriticalCcbs() []uint32                     { return m.nonCritical }

type fakeBroadcaster struct {
	implementers []uint32
	aborts       []uint32
	finalized    []uint32

	// failAbort fails the abort of that bundle while set.
	failAbort map[uint32]bool
	failAll   bool
}

var errTransport = errors.New("transport down")

func (b *fakeBroadcaster) DiscardImplementer(id uint32) error {
	if b.failAll {
		return errTransport
	}
	b.implementers = append(b.implementers, id)
	return nil
}

func (b *fakeBroadcaster) AbortCcb(id uint32) error {
	if b.failAll || b.failAbort[id] {
		return errTransport
	}
	b.aborts = append(b.aborts, id)
	return nil
}

func (b *fakeBroadcaster) FinalizeAdminOwner(id uint32) error {
	if b.failAll {
		return errTransport
	}
	b.finalized = append(b.finalized, id)
	return nil
}

type timeoutReply struct {
	client, invocation uint64
	kind               Kind
}

type fakeReplier struct {
	replies []timeoutReply
}

func (r *fakeReplier) ReplyTimeout(client, invocation uint64, kind Kind) error {
	r.replies = append(r.replies, timeoutReply{client, invocation, kind})
	return nil
}

func newTestReconciler(m Model, b Broadcaster, rep Replier) *Reconciler {
	return New(NewRegistry(), m, b, rep, 10, logging.NewNopLogger(), metrics.NewRegistry())
}

func TestDiscardConnectionScenario(t *testing.T) {
	m := newFakeModel()
	m.implementers[7] = 70
	m.ccbs[7] = []uint32{1, 2}
	b := &fakeBroadcaster{}
	r := newTestReconciler(m, b, &fakeReplier{})

	r.Registry().Register(7)
	r.Registry().QueueSearch(7, 500)
	r.Registry().AddContinuation(900, AdminOp, 7)
	r.Registry().AddContinuation(901, CcbReply, 7)

	assert.True(t, r.DiscardConnection(7))

	assert.Equal(t, []uint32{70}, b.implementers)
	assert.Equal(t, []uint32{1, 2}, b.aborts)
	assert.Empty(t, b.finalized)
	assert.Equal(t, []uint32{70}, m.discarded, "implementer removed locally")
	assert.Equal(t, 0, r.Registry().Len())
	assert.Empty(t, r.Registry().Queued(7))
	assert.Empty(t, r.Registry().ContinuationsFor(7))
}

func TestDiscardConnectionResumesPendingSteps(t *testing.T) {
	m := newFakeModel()
	m.implementers[7] = 70
	m.ccbs[7] = []uint32{1, 2}
	m.owners[7] = []uint32{30}
	b := &fakeBroadcaster{failAbort: map[uint32]bool{2: true}}
	r := newTestReconciler(m, b, &fakeReplier{})
	r.Registry().Register(7)

	assert.False(t, r.DiscardConnection(7))
	reg, ok := r.Registry().Get(7)
	require.True(t, ok)
	assert.True(t, reg.Stale)
	assert.Equal(t, []uint64{7}, r.Registry().StaleClients())

	b.failAbort = nil
	assert.True(t, r.DiscardConnection(7))

	// Each broadcast went out exactly once across both attempts
	assert.Equal(t, []uint32{70}, b.implementers)
	assert.Equal(t, []uint32{1, 2}, b.aborts)
	assert.Equal(t, []uint32{30}, b.finalized)
	assert.Equal(t, 0, r.Registry().Len())
}

func TestDiscardConnectionIdempotent(t *testing.T) {
	run := func(times int) (*fakeBroadcaster, *Reconciler) {
		m := newFakeModel()
		m.implementers[7] = 70
		m.ccbs[7] = []uint32{1}
		b := &fakeBroadcaster{}
		r := newTestReconciler(m, b, &fakeReplier{})
		r.Registry().Register(7)
		for i := 0; i < times; i++ {
			assert.True(t, r.DiscardConnection(7))
		}
		return b, r
	}

	once, r1 := run(1)
	twice, r2 := run(2)

	assert.Equal(t, once.implementers, twice.implementers)
	assert.Equal(t, once.aborts, twice.aborts)
	assert.Equal(t, r1.Registry().Len(), r2.Registry().Len())
}

func TestDiscardUnknownClient(t *testing.T) {
	b := &fakeBroadcaster{failAll: true}
	r := newTestReconciler(newFakeModel(), b, &fakeReplier{})
	assert.True(t, r.DiscardConnection(99))
}

func TestCleanTheHouseTimesOutContinuations(t *testing.T) {
	m := newFakeModel()
	m.expiredAdmin = []uint64{100, 101}
	m.expiredSearch = []uint64{200}
	m.expiredCcbs = []uint32{5}
	b := &fakeBroadcaster{}
	rep := &fakeReplier{}
	r := newTestReconciler(m, b, rep)

	r.Registry().Register(1)
	r.Registry().AddContinuation(100, AdminOp, 1)
	r.Registry().AddContinuation(200, SearchReq, 1)

	r.CleanTheHouse(3, false)

	// 101 had no continuation left to answer
	assert.Equal(t, []timeoutReply{{1, 100, AdminOp}, {1, 200, SearchReq}}, rep.replies)
	assert.Equal(t, []uint32{5}, b.aborts)
	assert.Equal(t, []uint32{5}, m.marked)
	assert.Empty(t, r.Registry().ContinuationsFor(1))
}

// deliveringBroadcaster applies aborts to the store the way the bus loops
// them back.
type deliveringBroadcaster struct {
	fakeBroadcaster
	store *model.Store
}

func (b *deliveringBroadcaster) AbortCcb(id uint32) error {
	if err := b.fakeBroadcaster.AbortCcb(id); err != nil {
		return err
	}
	b.store.HandleMessage(&transport.Message{Type: transport.MsgAbortCcb, ObjectID: id})
	return nil
}

func TestExpiredCcbAbortRetriedAfterBroadcastFailure(t *testing.T) {
	store := model.NewStore(model.InitFromFile, logging.NewNopLogger())
	require.NoError(t, store.OpenCcb(9, 1, true, 5))
	b := &deliveringBroadcaster{fakeBroadcaster: fakeBroadcaster{failAll: true}, store: store}
	r := newTestReconciler(store, b, &fakeReplier{})

	r.CleanTheHouse(5, false)
	assert.Empty(t, b.aborts)
	assert.False(t, store.CcbsTerminated())

	b.failAll = false
	r.CleanTheHouse(6, false)
	assert.Equal(t, []uint32{9}, b.aborts)
	assert.True(t, store.CcbsTerminated())

	r.CleanTheHouse(7, false)
	assert.Equal(t, []uint32{9}, b.aborts, "aborted once")
}

func TestCleanTheHouseRetriesStaleClients(t *testing.T) {
	m := newFakeModel()
	m.ccbs[4] = []uint32{8}
	b := &fakeBroadcaster{}
	r := newTestReconciler(m, b, &fakeReplier{})

	r.Registry().Register(4)
	require.True(t, r.Registry().MarkStale(4))
	assert.False(t, r.Registry().MarkStale(5))

	r.CleanTheHouse(1, false)

	assert.Equal(t, []uint32{8}, b.aborts)
	assert.Equal(t, 0, r.Registry().Len())
}

func TestNonCriticalSweepCoordinatorOnly(t *testing.T) {
	m := newFakeModel()
	m.nonCritical = []uint32{11, 12}
	b := &fakeBroadcaster{}
	r := newTestReconciler(m, b, &fakeReplier{})

	r.CleanTheHouse(10, false)
	assert.Empty(t, b.aborts)

	r.CleanTheHouse(11, true)
	assert.Empty(t, b.aborts, "off-period tick")

	r.CleanTheHouse(20, true)
	assert.Equal(t, []uint32{11, 12}, b.aborts)
}

func TestAbortNonCriticalCountsSuccesses(t *testing.T) {
	m := newFakeModel()
	m.nonCritical = []uint32{11, 12}
	b := &fakeBroadcaster{failAbort: map[uint32]bool{12: true}}
	r := newTestReconciler(m, b, &fakeReplier{})

	assert.Equal(t, 1, r.AbortNonCriticalCcbs())
}

func TestLogReplier(t *testing.T) {
	assert.NoError(t, LogReplier{Logger: logging.NewNopLogger()}.ReplyTimeout(1, 2, SearchReq))
}
