package cluster

// StaticElector names the coordinator in configuration.
type StaticElector struct {
	self          string
	coordinatorID string
}

// NewStaticElector returns an elector that makes coordinatorID the coordinator.
func NewStaticElector(self, coordinatorID string) (*StaticElector, error) {
	if self == "" {
		return nil, ErrInvalidNodeID
	}
	if coordinatorID == "" {
		return nil, ErrNoElectionSource
	}
	return &StaticElector{self: self, coordinatorID: coordinatorID}, nil
}

// Coordinator is always known for a static election.
func (e *StaticElector) Coordinator() (bool, bool) {
	return e.self == e.coordinatorID, true
}
