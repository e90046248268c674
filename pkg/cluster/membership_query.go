package cluster

import "slices"

// CoordinatorEligibility returns -1 while undetermined, 0 when another node
// coordinates and 1 when this node does. It stays undetermined until the
// node has seen its own introduction come back.
func (v *View) CoordinatorEligibility() int {
	v.mu.RLock()
	introduced := v.selfIntroduced
	v.mu.RUnlock()

	if !introduced {
		return -1
	}
	coordinator, known := v.elector.Coordinator()
	switch {
	case !known:
		return -1
	case coordinator:
		return 1
	default:
		return 0
	}
}

// IsCoordinator reports whether this node is the elected coordinator.
func (v *View) IsCoordinator() bool {
	coordinator, known := v.elector.Coordinator()
	return known && coordinator
}

// NodeCount returns the number of distinct nodes that introduced themselves.
func (v *View) NodeCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.nodes)
}

// RulingEpoch returns the highest epoch a ready coordinator introduced
// itself with. Zero means the cluster has not been loaded.
func (v *View) RulingEpoch() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rulingEpoch
}

// LoadingAnnounced returns the epoch of a load announced by another node.
func (v *View) LoadingAnnounced() (int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.loading == nil {
		return 0, false
	}
	return v.loading.Epoch, true
}

// SyncAnnounced returns the target epoch of the sync round in progress when
// this node is one of its targets. A round started for other nodes streams
// data this node would only partly receive.
func (v *View) SyncAnnounced() (int64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.sync == nil || !slices.Contains(v.sync.Targets, v.self) {
		return 0, false
	}
	return v.sync.Epoch, true
}

// SyncRequesters returns the peers waiting for a sync, sorted by id.
func (v *View) SyncRequesters() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.syncRequests))
	for id := range v.syncRequests {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// GetNode returns a copy of the last introduction from nodeID.
func (v *View) GetNode(nodeID string) (NodeInfo, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	node, ok := v.nodes[nodeID]
	if !ok {
		return NodeInfo{}, false
	}
	return *node, true
}

// GetAllNodes returns copies of every known node.
func (v *View) GetAllNodes() []NodeInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	nodes := make([]NodeInfo, 0, len(v.nodes))
	for _, node := range v.nodes {
		nodes = append(nodes, *node)
	}
	return nodes
}
