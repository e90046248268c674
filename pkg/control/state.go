// Package control is the per-node admission, load and sync state machine.
//
// A single goroutine calls Node.Tick on a fixed period. Each tick reaps
// helper processes, checks the coordinator/epoch invariant and performs at
// most one state transition. Once Ready, every tick also runs the
// reconciler sweep and the backend supervisor.
package control

// State is the node lifecycle state.
type State int

const (
	StateAnonymous State = iota
	StateClusterWaiting
	StateLoadingPending
	StateLoadingServer
	StateLoadingClient
	StateSyncPending
	StateSyncClient
	StateSyncServer
	StateReady
)

var stateNames = [...]string{
	StateAnonymous:      "anonymous",
	StateClusterWaiting: "cluster_waiting",
	StateLoadingPending: "loading_pending",
	StateLoadingServer:  "loading_server",
	StateLoadingClient:  "loading_client",
	StateSyncPending:    "sync_pending",
	StateSyncClient:     "sync_client",
	StateSyncServer:     "sync_server",
	StateReady:          "ready",
}

// StateNames lists every state name in declaration order.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transferring reports whether s moves bulk model state. At most one such
// state is current, which the single state field guarantees.
func (s State) Transferring() bool {
	switch s {
	case StateLoadingServer, StateLoadingClient, StateSyncClient, StateSyncServer:
		return true
	default:
		return false
	}
}

// syncPhase is the SyncServer sub-state.
type syncPhase int

const (
	phaseBarrier syncPhase = iota
	phaseSpawn
	phaseTransfer
)
