package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

// Store is safe for concurrent use. Inbound model messages arrive on the
// transport goroutine while the control loop queries it.
type Store struct {
	mu     sync.RWMutex
	logger logging.Logger

	epoch int64
	mode  RepositoryMode

	ccbs         map[uint32]*Ccb
	implementers map[uint64]uint32 // client -> implementer id
	adminOwners  map[uint32]uint64 // owner id -> client
	expected     map[uint64]expectation

	loadingDone   bool
	syncEpoch     int64
	syncDoneEpoch int64
	syncSeenAt    uint64
}

// NewStore creates an empty model in the given repository mode.
func NewStore(mode RepositoryMode, logger logging.Logger) *Store {
	return &Store{
		logger:       logging.OrDefault(logger).With(logging.Component("model")),
		mode:         mode,
		ccbs:         make(map[uint32]*Ccb),
		implementers: make(map[uint64]uint32),
		adminOwners:  make(map[uint32]uint64),
		expected:     make(map[uint64]expectation),
	}
}

// AdjustEpoch claims the next epoch after current.
func (s *Store) AdjustEpoch(current int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = max(s.epoch, current) + 1
	return s.epoch
}

// Epoch returns the last epoch claimed or observed.
func (s *Store) Epoch() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ReadyForLoading reports whether the model is empty enough to load into.
func (s *Store) ReadyForLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ccbs) == 0 && len(s.implementers) == 0 && len(s.adminOwners) == 0
}

// LoadingComplete reports whether the loader output has been ingested.
func (s *Store) LoadingComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingDone
}

// SyncComplete reports whether the announced sync round finished. The tick
// of the first positive answer is kept for diagnostics.
func (s *Store) SyncComplete(isCoordinator bool, tick uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.syncEpoch > 0 && s.syncDoneEpoch >= s.syncEpoch
	if done && s.syncSeenAt == 0 {
		s.syncSeenAt = tick
		s.logger.Debug("sync complete",
			logging.Epoch(s.syncEpoch),
			logging.Tick(tick),
			logging.Bool("coordinator", isCoordinator))
	}
	return done
}

// MarkCcbAborted stops reporting an expired bundle whose abort was
// broadcast. The bundle itself closes when the abort is delivered.
func (s *Store) MarkCcbAborted(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.ccbs[id]; ok {
		c.expired = true
	}
}

// SyncDoneEpoch returns the highest epoch a finished sync round reached, as
// seen by this node.
func (s *Store) SyncDoneEpoch() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncDoneEpoch
}

// CcbsTerminated reports whether no change bundle is in flight.
func (s *Store) CcbsTerminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ccbs) == 0
}

// NonCriticalCcbs returns open bundles that may be aborted without harm.
func (s *Store) NonCriticalCcbs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint32
	for id, c := range s.ccbs {
		if !c.Critical {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// CleanTheBasement removes expectations whose deadline passed and returns
// them with the bundles that expired. An expired bundle is reported on every
// call until MarkCcbAborted records that its abort went out.
func (s *Store) CleanTheBasement(tick uint64) (adminOps, searches []uint64, ccbs []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for inv, e := range s.expected {
		if e.deadline > tick {
			continue
		}
		delete(s.expected, inv)
		switch e.kind {
		case WaitAdminOp:
			adminOps = append(adminOps, inv)
		case WaitSearch:
			searches = append(searches, inv)
		}
	}
	for id, c := range s.ccbs {
		if !c.expired && c.Deadline > 0 && c.Deadline <= tick {
			ccbs = append(ccbs, id)
		}
	}
	slices.Sort(adminOps)
	slices.Sort(searches)
	slices.Sort(ccbs)
	return adminOps, searches, ccbs
}

// ImplementerID returns the implementer held by client.
func (s *Store) ImplementerID(client uint64) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.implementers[client]
	return id, ok
}

// DiscardImplementer removes the implementer. Unknown ids are ignored.
func (s *Store) DiscardImplementer(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client, impl := range s.implementers {
		if impl == id {
			delete(s.implementers, client)
		}
	}
}

// CcbIDsForClient returns the open bundles client originated.
func (s *Store) CcbIDsForClient(client uint64) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint32
	for id, c := range s.ccbs {
		if c.Client == client {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// AdminOwnerIDsForClient returns the admin owners client holds.
func (s *Store) AdminOwnerIDsForClient(client uint64) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint32
	for id, c := range s.adminOwners {
		if c == client {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// RepositoryInitMode returns the current repository mode.
func (s *Store) RepositoryInitMode() RepositoryMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetRepositoryInitMode switches the repository mode.
func (s *Store) SetRepositoryInitMode(mode RepositoryMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != mode {
		s.logger.Info("repository mode changed",
			logging.String("from", s.mode.String()),
			logging.String("to", mode.String()))
	}
	s.mode = mode
}

// OpenCcb records a change bundle. deadline 0 never expires.
func (s *Store) OpenCcb(id uint32, client uint64, critical bool, deadline uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ccbs[id]; ok {
		return fmt.Errorf("%w: %d", ErrCcbExists, id)
	}
	s.ccbs[id] = &Ccb{ID: id, Client: client, Critical: critical, Deadline: deadline}
	return nil
}

// CloseCcb marks a bundle terminal.
func (s *Store) CloseCcb(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ccbs, id)
}

// SetImplementer gives client the implementer role id.
func (s *Store) SetImplementer(client uint64, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.implementers[client]; ok && held != id {
		return fmt.Errorf("%w: client %d holds %d", ErrImplementerHeld, client, held)
	}
	s.implementers[client] = id
	return nil
}

// SetAdminOwner records that client holds admin owner id.
func (s *Store) SetAdminOwner(client uint64, id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminOwners[id] = client
}

// Expect registers a reply wait for invocation that times out after deadline.
func (s *Store) Expect(kind WaitKind, invocation, deadline uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected[invocation] = expectation{kind: kind, deadline: deadline}
}

// Fulfill drops the wait for invocation once its reply arrived.
func (s *Store) Fulfill(invocation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expected, invocation)
}

// HandleMessage applies cluster-wide model changes.
func (s *Store) HandleMessage(msg *transport.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case transport.MsgDiscardImplementer:
		for client, impl := range s.implementers {
			if impl == msg.ObjectID {
				delete(s.implementers, client)
			}
		}
	case transport.MsgAbortCcb:
		delete(s.ccbs, msg.ObjectID)
	case transport.MsgFinalizeAdminOwner:
		delete(s.adminOwners, msg.ObjectID)
	case transport.MsgAnnounceLoading:
		s.epoch = max(s.epoch, msg.Epoch)
	case transport.MsgLoadingDone:
		s.loadingDone = true
		s.epoch = max(s.epoch, msg.Epoch)
	case transport.MsgAnnounceSync:
		s.epoch = max(s.epoch, msg.Epoch)
		s.syncEpoch = msg.Epoch
		s.syncSeenAt = 0
	case transport.MsgSyncDone:
		s.syncDoneEpoch = max(s.syncDoneEpoch, msg.Epoch)
	case transport.MsgSyncAbort:
		if s.syncEpoch == msg.Epoch {
			s.syncEpoch = 0
		}
	}
}
