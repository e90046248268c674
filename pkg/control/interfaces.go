package control

import "github.com/dd0wney/cluso-objectd/pkg/transfer"

// Roles is what the node knows about the cluster. *cluster.View satisfies it.
type Roles interface {
	// CoordinatorEligibility is -1 while undetermined, 0 for a
	// non-coordinator and 1 for the coordinator.
	CoordinatorEligibility() int
	IsCoordinator() bool
	NodeCount() int
	RulingEpoch() int64
	LoadingAnnounced() (int64, bool)
	// SyncAnnounced reports a sync round only when it targets this node.
	SyncAnnounced() (int64, bool)
	SyncRequesters() []string
	ClearSyncRequests(nodes []string)
	TakePeerJoined() bool
}

// Announcer sends control messages. Errors are transient.
type Announcer interface {
	Introduce(epoch int64, coordinator, ready bool) error
	AnnounceLoading(epoch int64) error
	RequestSync(epoch int64) error
	AnnounceSync(epoch int64, targets []string) error
	SyncAbort(epoch int64) error
}

// Model is the part of the object model the state machine consults.
type Model interface {
	AdjustEpoch(current int64) int64
	ReadyForLoading() bool
	LoadingComplete() bool
	SyncComplete(isCoordinator bool, tick uint64) bool
	SyncDoneEpoch() int64
	CcbsTerminated() bool
}

// Helpers starts and watches the transfer helpers. *transfer.Supervisor
// satisfies it.
type Helpers interface {
	StartLoader(dir, file string, done func() bool) error
	StartSyncAgent(done func() bool) error
	Reap()
	Alive(kind transfer.Kind) bool
	Complete(kind transfer.Kind) bool
	Exited(kind transfer.Kind) (bool, error)
	Terminate(kind transfer.Kind) error
	Forget(kind transfer.Kind)
	Pids() map[string]int
}

// EpochStore persists NodeEpoch.
type EpochStore interface {
	Load() int64
	Save(epoch int64) error
}

// Sweeper is the reconciler as seen from the state machine.
type Sweeper interface {
	CleanTheHouse(tick uint64, coordinator bool)
	AbortNonCriticalCcbs() int
}

// BackendChecker is the durable export supervisor.
type BackendChecker interface {
	Check(coordinator bool, epoch int64)
}
