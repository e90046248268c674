package cluster

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
)

// NodeInfo is the last introduction received from a node.
type NodeInfo struct {
	ID          string    `json:"id"`          // Unique node identifier
	Incarnation string    `json:"incarnation"` // Process identity, changes on restart
	Pid         int       `json:"pid"`         // Process id on the remote host
	Epoch       int64     `json:"epoch"`       // Epoch the node claims to hold
	Coordinator bool      `json:"coordinator"` // Node introduced itself as coordinator
	Ready       bool      `json:"ready"`       // Node finished loading or syncing
	Durable     bool      `json:"durable"`     // Node runs with durable export
	LastSeen    time.Time `json:"last_seen"`   // Time of the last introduction
}

// Announcement is a transfer announced by another node.
type Announcement struct {
	NodeID string
	Epoch  int64
	// Targets are the nodes a sync round streams to.
	Targets []string
}

// View is this node's picture of the cluster, built from inbound messages.
//
// Concurrent Safety:
// 1. HandleMessage runs on the transport receive goroutine
// 2. Queries run on the control loop
// 3. All fields are guarded by mu
type View struct {
	self    string
	elector Elector
	logger  logging.Logger

	mu             sync.RWMutex
	nodes          map[string]*NodeInfo
	selfIntroduced bool
	rulingEpoch    int64
	loading        *Announcement
	sync           *Announcement
	syncRequests   map[string]int64
	peerJoined     bool
}

// NewView creates an empty view for the local node.
func NewView(self string, elector Elector, logger logging.Logger) (*View, error) {
	if self == "" {
		return nil, ErrInvalidNodeID
	}
	return &View{
		self:         self,
		elector:      elector,
		logger:       logging.OrDefault(logger).With(logging.Component("cluster")),
		nodes:        make(map[string]*NodeInfo),
		syncRequests: make(map[string]int64),
	}, nil
}
