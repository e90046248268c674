// Package reconcile cleans up after dead clients and expired continuations.
package reconcile

import (
	"cmp"
	"slices"
	"sync"
)

// Kind is the kind of reply a continuation correlates.
type Kind int

const (
	AdminOp Kind = iota
	SearchReq
	CcbReply
)

func (k Kind) String() string {
	switch k {
	case AdminOp:
		return "admin_op"
	case SearchReq:
		return "search"
	case CcbReply:
		return "ccb"
	default:
		return "unknown"
	}
}

// Continuation ties an invocation id to the client waiting for its reply.
type Continuation struct {
	Invocation uint64
	Kind       Kind
	Client     uint64
}

// Registration is a connected client session.
type Registration struct {
	ID    uint64
	Stale bool

	progress discardProgress
}

// discardProgress remembers which discard steps already succeeded so a
// retry repeats only the rest.
type discardProgress struct {
	searchesDropped bool
	localDropped    bool
	implementerDone bool
	abortedCcbs     map[uint32]bool
	finalizedOwners map[uint32]bool
}

// Registry holds client sessions, their queued search operations and the
// continuations awaiting replies.
type Registry struct {
	mu            sync.Mutex
	clients       map[uint64]*Registration
	queued        map[uint64][]uint64
	continuations map[uint64]*Continuation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:       make(map[uint64]*Registration),
		queued:        make(map[uint64][]uint64),
		continuations: make(map[uint64]*Continuation),
	}
}

// Register adds a client session. Registering twice is harmless.
func (r *Registry) Register(client uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client]; !ok {
		r.clients[client] = &Registration{ID: client}
	}
}

// QueueSearch records a search operation not yet delivered to client.
func (r *Registry) QueueSearch(client, op uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued[client] = append(r.queued[client], op)
}

// Queued returns the undelivered search operations for client.
func (r *Registry) Queued(client uint64) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.queued[client])
}

// AddContinuation records that client waits for the reply to invocation.
func (r *Registry) AddContinuation(invocation uint64, kind Kind, client uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continuations[invocation] = &Continuation{Invocation: invocation, Kind: kind, Client: client}
}

// Fulfill removes and returns the continuation for invocation.
func (r *Registry) Fulfill(invocation uint64) (Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.continuations[invocation]
	if !ok {
		return Continuation{}, false
	}
	delete(r.continuations, invocation)
	return *c, true
}

// ContinuationsFor returns the continuations owned by client.
func (r *Registry) ContinuationsFor(client uint64) []Continuation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Continuation
	for _, c := range r.continuations {
		if c.Client == client {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Continuation) int {
		return cmp.Compare(a.Invocation, b.Invocation)
	})
	return out
}

// MarkStale flags a client whose transport peer is gone. The next sweep
// discards it.
func (r *Registry) MarkStale(client uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.clients[client]
	if !ok {
		return false
	}
	reg.Stale = true
	return true
}

// StaleClients returns the ids of stale registrations in ascending order.
func (r *Registry) StaleClients() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for id, reg := range r.clients {
		if reg.Stale {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Get returns a copy of the registration for client.
func (r *Registry) Get(client uint64) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.clients[client]
	if !ok {
		return Registration{}, false
	}
	return Registration{ID: reg.ID, Stale: reg.Stale}, true
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) registration(client uint64) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[client]
}

func (r *Registry) dropQueued(client uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.queued[client])
	delete(r.queued, client)
	return n
}

// dropLocal removes the admin-op and search continuations of client. CCB
// continuations go away with the bundle abort.
func (r *Registry) dropLocal(client uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for inv, c := range r.continuations {
		if c.Client == client && c.Kind != CcbReply {
			delete(r.continuations, inv)
			n++
		}
	}
	return n
}

func (r *Registry) setStale(client uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.clients[client]; ok {
		reg.Stale = true
	}
}

func (r *Registry) remove(client uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, client)
	for inv, c := range r.continuations {
		if c.Client == client {
			delete(r.continuations, inv)
		}
	}
}
