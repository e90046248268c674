// Package model keeps the bookkeeping the control plane needs from the
// in-memory object model: epochs, change bundles, implementers, admin owners,
// continuation deadlines and the repository mode.
package model

import "fmt"

// RepositoryMode says whether the model is backed by a durable image.
type RepositoryMode int

const (
	// InitFromFile loads from the repository file and keeps nothing durable.
	InitFromFile RepositoryMode = iota
	// KeepRepository keeps the durable backend image up to date.
	KeepRepository
)

func (m RepositoryMode) String() string {
	switch m {
	case InitFromFile:
		return "init_from_file"
	case KeepRepository:
		return "keep_repository"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseRepositoryMode is the inverse of String.
func ParseRepositoryMode(s string) (RepositoryMode, error) {
	switch s {
	case "init_from_file":
		return InitFromFile, nil
	case "keep_repository":
		return KeepRepository, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// WaitKind is the kind of reply a continuation waits for.
type WaitKind int

const (
	WaitAdminOp WaitKind = iota
	WaitSearch
)

// Ccb is an open change bundle.
type Ccb struct {
	ID       uint32
	Client   uint64
	Critical bool
	// Deadline is the tick after which the bundle is aborted.
	Deadline uint64
	expired  bool
}

type expectation struct {
	kind     WaitKind
	deadline uint64
}
