package cluster

import (
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

// HandleMessage applies an inbound message to the view.
func (v *View) HandleMessage(msg *transport.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch msg.Type {
	case transport.MsgIntroduce:
		v.introduce(msg)
	case transport.MsgAnnounceLoading:
		if msg.NodeID != v.self {
			v.loading = &Announcement{NodeID: msg.NodeID, Epoch: msg.Epoch}
		}
	case transport.MsgRequestSync:
		if msg.NodeID != v.self {
			v.syncRequests[msg.NodeID] = msg.Epoch
		}
	case transport.MsgAnnounceSync:
		if msg.NodeID != v.self {
			v.sync = &Announcement{NodeID: msg.NodeID, Epoch: msg.Epoch, Targets: msg.Targets}
		}
	case transport.MsgSyncAbort, transport.MsgSyncDone:
		if v.sync != nil && v.sync.Epoch == msg.Epoch {
			v.sync = nil
		}
	}
}

// introduce must be called with mu held.
func (v *View) introduce(msg *transport.Message) {
	node, known := v.nodes[msg.NodeID]
	if !known {
		node = &NodeInfo{ID: msg.NodeID}
		v.nodes[msg.NodeID] = node
	}
	restarted := known && node.Incarnation != msg.Incarnation

	node.Incarnation = msg.Incarnation
	node.Pid = msg.Pid
	node.Epoch = msg.Epoch
	node.Coordinator = msg.Coordinator
	node.Ready = msg.Ready
	node.Durable = msg.Durable
	node.LastSeen = time.Now()

	if msg.NodeID == v.self {
		v.selfIntroduced = true
	} else if !known || restarted {
		v.peerJoined = true
		v.logger.Info("peer introduced", logging.Node(msg.NodeID), logging.Epoch(msg.Epoch))
	}

	// Only a coordinator holding a loaded model rules.
	if msg.Coordinator && msg.Ready && msg.Epoch > v.rulingEpoch {
		v.rulingEpoch = msg.Epoch
	}
}

// ClearSyncRequests drops the requests of nodes included in an announced
// sync round. Later requesters stay pending for the next round.
func (v *View) ClearSyncRequests(nodes []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range nodes {
		delete(v.syncRequests, id)
	}
}

// TakePeerJoined reports whether a new peer introduced itself since the last call.
func (v *View) TakePeerJoined() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	joined := v.peerJoined
	v.peerJoined = false
	return joined
}
