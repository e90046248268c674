package reconcile

import (
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
)

// Model is the part of the object model the reconciler queries.
type Model interface {
	CleanTheBasement(tick uint64) (adminOps, searches []uint64, ccbs []uint32)
	MarkCcbAborted(id uint32)
	ImplementerID(client uint64) (uint32, bool)
	DiscardImplementer(id uint32)
	CcbIDsForClient(client uint64) []uint32
	AdminOwnerIDsForClient(client uint64) []uint32
	NonCriticalCcbs() []uint32
}

// Broadcaster sends cleanup decisions to every node, this one included.
type Broadcaster interface {
	DiscardImplementer(id uint32) error
	AbortCcb(id uint32) error
	FinalizeAdminOwner(id uint32) error
}

// Replier answers a waiting client with a timeout error.
type Replier interface {
	ReplyTimeout(client, invocation uint64, kind Kind) error
}

// Reconciler runs on the control loop.
type Reconciler struct {
	registry    *Registry
	model       Model
	broadcaster Broadcaster
	replier     Replier

	// nonCriticalEvery is the sweep period, in ticks, for aborting
	// non-critical bundles. Zero disables it.
	nonCriticalEvery uint64

	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates a reconciler over registry.
func New(registry *Registry, model Model, b Broadcaster, replier Replier, nonCriticalEvery uint64,
	logger logging.Logger, reg *metrics.Registry) *Reconciler {
	return &Reconciler{
		registry:         registry,
		model:            model,
		broadcaster:      b,
		replier:          replier,
		nonCriticalEvery: nonCriticalEvery,
		logger:           logging.OrDefault(logger).With(logging.Component("reconcile")),
		metrics:          reg,
	}
}

// Registry returns the client registry.
func (r *Reconciler) Registry() *Registry {
	return r.registry
}

// DiscardConnection removes everything a dead client left behind. It
// returns false when a broadcast failed; the registration is then stale and
// a later call resumes with the steps still pending. Unknown clients are
// already discarded.
func (r *Reconciler) DiscardConnection(client uint64) bool {
	reg := r.registry.registration(client)
	if reg == nil {
		return true
	}
	p := &reg.progress
	log := r.logger.With(logging.Client(client))

	if !p.searchesDropped {
		if n := r.registry.dropQueued(client); n > 0 {
			log.Debug("dropped queued searches", logging.Int("count", n))
		}
		p.searchesDropped = true
	}

	if !p.localDropped {
		if n := r.registry.dropLocal(client); n > 0 {
			log.Debug("dropped continuations", logging.Int("count", n))
		}
		p.localDropped = true
	}

	if !p.implementerDone {
		if id, ok := r.model.ImplementerID(client); ok {
			err := r.broadcaster.DiscardImplementer(id)
			r.metrics.RecordReconcileBroadcast("discard_implementer", err)
			if err != nil {
				return r.markStale(client, "discard implementer", err)
			}
			// Local removal must not wait for the broadcast to loop back.
			r.model.DiscardImplementer(id)
		}
		p.implementerDone = true
	}

	for _, id := range r.model.CcbIDsForClient(client) {
		if p.abortedCcbs[id] {
			continue
		}
		err := r.broadcaster.AbortCcb(id)
		r.metrics.RecordReconcileBroadcast("abort_ccb", err)
		if err != nil {
			return r.markStale(client, "abort ccb", err)
		}
		if p.abortedCcbs == nil {
			p.abortedCcbs = make(map[uint32]bool)
		}
		p.abortedCcbs[id] = true
	}

	for _, id := range r.model.AdminOwnerIDsForClient(client) {
		if p.finalizedOwners[id] {
			continue
		}
		err := r.broadcaster.FinalizeAdminOwner(id)
		r.metrics.RecordReconcileBroadcast("finalize_admin_owner", err)
		if err != nil {
			return r.markStale(client, "finalize admin owner", err)
		}
		if p.finalizedOwners == nil {
			p.finalizedOwners = make(map[uint32]bool)
		}
		p.finalizedOwners[id] = true
	}

	r.registry.remove(client)
	r.metrics.RecordDiscardedClient()
	log.Info("client discarded")
	return true
}

func (r *Reconciler) markStale(client uint64, step string, err error) bool {
	r.registry.setStale(client)
	r.logger.Warn("client discard incomplete",
		logging.Client(client),
		logging.String("step", step),
		logging.Error(err))
	return false
}

// CleanTheHouse is the periodic sweep run from Ready.
func (r *Reconciler) CleanTheHouse(tick uint64, coordinator bool) {
	for _, client := range r.registry.StaleClients() {
		r.DiscardConnection(client)
	}

	adminOps, searches, ccbs := r.model.CleanTheBasement(tick)
	r.timeout(adminOps, AdminOp)
	r.timeout(searches, SearchReq)

	// A failed abort is reported again by the next sweep.
	for _, id := range ccbs {
		err := r.broadcaster.AbortCcb(id)
		r.metrics.RecordReconcileBroadcast("abort_ccb", err)
		if err != nil {
			r.logger.Warn("abort of expired ccb failed", logging.Uint64("ccb", uint64(id)), logging.Error(err))
			continue
		}
		r.model.MarkCcbAborted(id)
		r.metrics.RecordContinuationTimeout(CcbReply.String())
	}

	if coordinator && r.nonCriticalEvery > 0 && tick%r.nonCriticalEvery == 0 {
		r.AbortNonCriticalCcbs()
	}

	r.metrics.SetStaleClients(len(r.registry.StaleClients()))
}

func (r *Reconciler) timeout(invocations []uint64, kind Kind) {
	for _, inv := range invocations {
		r.metrics.RecordContinuationTimeout(kind.String())
		c, ok := r.registry.Fulfill(inv)
		if !ok {
			continue
		}
		if err := r.replier.ReplyTimeout(c.Client, inv, kind); err != nil {
			r.logger.Debug("timeout reply failed",
				logging.Client(c.Client),
				logging.Uint64("invocation", inv),
				logging.Error(err))
		}
	}
}

// AbortNonCriticalCcbs asks the cluster to abort every non-critical bundle
// and returns how many aborts were sent.
func (r *Reconciler) AbortNonCriticalCcbs() int {
	sent := 0
	for _, id := range r.model.NonCriticalCcbs() {
		err := r.broadcaster.AbortCcb(id)
		r.metrics.RecordReconcileBroadcast("abort_ccb", err)
		if err != nil {
			r.logger.Debug("non-critical abort failed", logging.Uint64("ccb", uint64(id)), logging.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// LogReplier logs timeouts for sessions that have no reply channel attached.
type LogReplier struct {
	Logger logging.Logger
}

// ReplyTimeout logs the timeout.
func (l LogReplier) ReplyTimeout(client, invocation uint64, kind Kind) error {
	logging.OrDefault(l.Logger).Info("continuation timed out",
		logging.Client(client),
		logging.Uint64("invocation", invocation),
		logging.String("kind", kind.String()))
	return nil
}
