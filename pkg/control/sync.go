package control

import (
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

// nudgeInterval spaces the non-critical abort requests during the barrier.
const nudgeInterval = time.Second

func (n *Node) syncPending() *FatalError {
	if n.coordinator {
		return fatal(n.state, ErrCoordinatorDuringSync, "waiting for sync at epoch %d", n.epoch)
	}
	if n.inState() > n.cfg.SyncPendingCeiling {
		return fatal(n.state, ErrCeilingExceeded, "no sync after %s", n.inState())
	}

	if announced, ok := n.Roles.SyncAnnounced(); ok && announced > n.epoch {
		n.target = announced
		n.transition(StateSyncClient)
		return nil
	}

	if n.sendDue(n.cfg.SyncRequestInterval) {
		if err := n.Announcer.RequestSync(n.epoch); err != nil {
			n.logger.Debug("sync request resend failed", logging.Error(err))
		}
	}
	return nil
}

func (n *Node) syncClient() *FatalError {
	// Nothing safe can be done when the old coordinator vanished mid-sync.
	if n.coordinator {
		return fatal(n.state, ErrCoordinatorDuringSync, "sync to epoch %d incomplete", n.target)
	}

	if n.Model.SyncComplete(false, n.tick) {
		return n.finalize(n.target)
	}

	if announced, ok := n.Roles.SyncAnnounced(); !ok || announced != n.target {
		n.logger.Warn("sync round withdrawn, requesting again", logging.Epoch(n.target))
		n.target = 0
		n.lastSend = time.Time{}
		n.transition(StateSyncPending)
		return nil
	}

	if n.inState() > n.cfg.SyncClientCeiling {
		return fatal(n.state, ErrCeilingExceeded, "sync to epoch %d did not finish in %s", n.target, n.cfg.SyncClientCeiling)
	}
	return nil
}

// startSyncServer opens a sync round from Ready. It stays in Ready when the
// announcement cannot be sent.
func (n *Node) startSyncServer(requesters []string) {
	target := n.Model.AdjustEpoch(n.epoch)
	if err := n.Announcer.AnnounceSync(target, requesters); err != nil {
		n.logger.Debug("sync announcement failed", logging.Error(err))
		return
	}
	n.Roles.ClearSyncRequests(requesters)
	n.Helpers.Forget(transfer.KindSyncAgent)
	n.target = target
	n.phase = phaseBarrier
	n.phaseSince = n.now()
	n.lastNudge = time.Time{}
	n.transition(StateSyncServer)
}

func (n *Node) syncServer() *FatalError {
	switch n.phase {
	case phaseBarrier:
		if !n.Model.CcbsTerminated() {
			if n.now().Sub(n.phaseSince) > n.cfg.SyncBarrierTimeout {
				n.abortSync("change bundles still open")
				return nil
			}
			if n.lastNudge.IsZero() || n.now().Sub(n.lastNudge) >= nudgeInterval {
				n.lastNudge = n.now()
				n.Sweeper.AbortNonCriticalCcbs()
			}
			return nil
		}
		n.phase = phaseSpawn
		fallthrough

	case phaseSpawn:
		done := func() bool { return n.Model.SyncComplete(true, n.tick) }
		if err := n.Helpers.StartSyncAgent(done); err != nil {
			n.abortSync("sync agent spawn failed")
			return nil
		}
		n.phase = phaseTransfer
		n.phaseSince = n.now()

	case phaseTransfer:
		if n.Helpers.Complete(transfer.KindSyncAgent) {
			n.Metrics.RecordSyncRound("success")
			return n.finalize(n.target)
		}
		if exited, err := n.Helpers.Exited(transfer.KindSyncAgent); exited {
			n.logger.Warn("sync agent exited before completion", logging.Error(err))
			n.abortSync("sync agent exited")
			return nil
		}
		if n.now().Sub(n.phaseSince) > n.cfg.SyncServerCeiling {
			if err := n.Helpers.Terminate(transfer.KindSyncAgent); err != nil {
				n.logger.Warn("terminate sync agent failed", logging.Error(err))
			}
			if err := n.Announcer.SyncAbort(n.target); err != nil {
				n.logger.Warn("sync abort broadcast failed", logging.Error(err))
			}
			n.Metrics.RecordSyncRound("hung")
			return fatal(n.state, ErrTransferHung, "no exit within %s", n.cfg.SyncServerCeiling)
		}
	}
	return nil
}

// abortSync cancels the round cluster-wide and returns to Ready. The abort
// is best-effort; peers also time out on their own.
func (n *Node) abortSync(reason string) {
	if err := n.Announcer.SyncAbort(n.target); err != nil {
		n.logger.Warn("sync abort broadcast failed", logging.Error(err))
	}
	n.Metrics.RecordSyncRound("aborted")
	n.logger.Warn("sync round aborted", logging.Epoch(n.target), logging.String("reason", reason))
	if !n.Helpers.Alive(transfer.KindSyncAgent) {
		n.Helpers.Forget(transfer.KindSyncAgent)
	}
	n.transition(StateReady)
}

func (n *Node) ready() *FatalError {
	if !n.coordinator && n.ruling > n.epoch && n.Model.SyncDoneEpoch() >= n.ruling {
		if fe := n.followRuling(); fe != nil {
			return fe
		}
	}

	if n.introducePending {
		n.introduceReady()
	} else if n.Roles.TakePeerJoined() {
		n.introducePending = true
		n.introduceReady()
	}

	n.Sweeper.CleanTheHouse(n.tick, n.coordinator)
	n.Backend.Check(n.coordinator, n.epoch)

	if n.coordinator && !n.Helpers.Alive(transfer.KindSyncAgent) {
		if requesters := n.Roles.SyncRequesters(); len(requesters) > 0 {
			n.startSyncServer(requesters)
		}
	}
	return nil
}

// followRuling moves a ready member to the epoch of a sync round it saw
// finish. The member already holds the replicated model, so only the epoch
// changes. A member that missed the round keeps trailing.
func (n *Node) followRuling() *FatalError {
	from := n.epoch
	n.advance(n.ruling)
	if err := n.Epochs.Save(n.epoch); err != nil {
		return fatal(n.state, ErrEpochPersist, "%v", err)
	}
	n.introducePending = true
	n.logger.Info("epoch follows coordinator",
		logging.Int64("from", from),
		logging.Epoch(n.epoch))
	return nil
}
