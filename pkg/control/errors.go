package control

import (
	"errors"
	"fmt"
)

// Reasons a node gives up. Each is wrapped in a *FatalError.
var (
	ErrEpochInvariant        = errors.New("coordinator behind ruling epoch")
	ErrCeilingExceeded       = errors.New("state ceiling exceeded")
	ErrCannotLoad            = errors.New("coordinator cannot load an already loaded cluster")
	ErrLoaderFailed          = errors.New("loader exited before loading completed")
	ErrCoordinatorDuringSync = errors.New("became coordinator while syncing")
	ErrTransferHung          = errors.New("sync agent hung")
	ErrEpochPersist          = errors.New("epoch could not be persisted")
	ErrSpawnFailed           = errors.New("helper could not be started")
)

var reasonLabels = map[error]string{
	ErrEpochInvariant:        "epoch_invariant",
	ErrCeilingExceeded:       "ceiling_exceeded",
	ErrCannotLoad:            "cannot_load",
	ErrLoaderFailed:          "loader_failed",
	ErrCoordinatorDuringSync: "coordinator_during_sync",
	ErrTransferHung:          "transfer_hung",
	ErrEpochPersist:          "epoch_persist",
	ErrSpawnFailed:           "spawn_failed",
}

// FatalError ends the process. Recovery is a restart from the persisted epoch.
type FatalError struct {
	State  State
	Reason error
	Detail string
}

func (e *FatalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("fatal in %s: %v", e.State, e.Reason)
	}
	return fmt.Sprintf("fatal in %s: %v: %s", e.State, e.Reason, e.Detail)
}

func (e *FatalError) Unwrap() error {
	return e.Reason
}

// Label is a short metric-friendly name for the reason.
func (e *FatalError) Label() string {
	if l, ok := reasonLabels[e.Reason]; ok {
		return l
	}
	return "other"
}

func fatal(state State, reason error, format string, args ...any) *FatalError {
	return &FatalError{State: state, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
