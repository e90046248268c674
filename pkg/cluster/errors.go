package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidNodeID    = errors.New("node ID cannot be empty")
	ErrNoElectionSource = errors.New("coordinator ID or ZooKeeper servers required")
	ErrInvalidZooKeeper = errors.New("ZooKeeper root path must be absolute")
)

// Election errors
var (
	ErrNotConnected  = errors.New("not connected to ZooKeeper")
	ErrElectorClosed = errors.New("elector closed")
	ErrMemberMissing = errors.New("own election member not found")
)
