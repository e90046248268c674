package cluster

// Elector answers whether this node is the cluster coordinator. known is
// false while the election has not produced an answer yet.
type Elector interface {
	Coordinator() (coordinator bool, known bool)
}

// ElectorFunc adapts a function to Elector.
type ElectorFunc func() (bool, bool)

// Coordinator calls f.
func (f ElectorFunc) Coordinator() (bool, bool) { return f() }
