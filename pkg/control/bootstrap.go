package control

import (
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

func (n *Node) anonymous() *FatalError {
	if !n.sendDue(n.cfg.IntroduceInterval) {
		return nil
	}
	if err := n.Announcer.Introduce(n.epoch, n.coordinator, false); err != nil {
		n.logger.Debug("introduce failed", logging.Error(err))
		return nil
	}
	n.transition(StateClusterWaiting)
	return nil
}

func (n *Node) clusterWaiting() *FatalError {
	waited := n.inState()
	if waited > n.cfg.ClusterWaitCeiling {
		return fatal(n.state, ErrCeilingExceeded, "no coordinator decision after %s", waited)
	}

	switch n.Roles.CoordinatorEligibility() {
	case -1:
		if n.sendDue(n.cfg.IntroduceInterval) {
			if err := n.Announcer.Introduce(n.epoch, n.coordinator, false); err != nil {
				n.logger.Debug("introduce resend failed", logging.Error(err))
			}
		}
	case 0:
		n.transition(StateLoadingPending)
	case 1:
		count := n.Roles.NodeCount()
		if count >= n.cfg.ExpectedNodes || waited >= n.cfg.WaitBudget {
			if count < n.cfg.ExpectedNodes {
				n.logger.Warn("wait budget spent, continuing without all nodes",
					logging.Int("nodes", count),
					logging.Int("expected", n.cfg.ExpectedNodes))
			}
			n.transition(StateLoadingPending)
		}
	}
	return nil
}

// loaderEligibility is -1 when the cluster is already loaded, 0 when another
// node loads and otherwise the epoch this node claims for the load.
func (n *Node) loaderEligibility() int64 {
	if n.ruling > 0 {
		return -1
	}
	if !n.coordinator {
		return 0
	}
	if n.target == 0 {
		n.target = n.Model.AdjustEpoch(n.epoch)
	}
	return n.target
}

func (n *Node) loadingPending() *FatalError {
	if n.inState() > n.cfg.LoadingPendingCeiling {
		return fatal(n.state, ErrCeilingExceeded, "no loading decision after %s", n.inState())
	}

	switch e := n.loaderEligibility(); {
	case e < 0:
		if n.coordinator {
			return fatal(n.state, ErrCannotLoad, "ruling epoch %d", n.ruling)
		}
		if n.inState() < n.cfg.SyncRequestGuard {
			return nil
		}
		if err := n.Announcer.RequestSync(n.epoch); err != nil {
			n.logger.Debug("sync request failed", logging.Error(err))
			return nil
		}
		n.lastSend = n.now()
		n.target = 0
		n.transition(StateSyncPending)
	case e == 0:
		announced, ok := n.Roles.LoadingAnnounced()
		if !ok {
			return nil
		}
		n.target = announced
		n.transition(StateLoadingClient)
	default:
		if err := n.Announcer.AnnounceLoading(e); err != nil {
			n.logger.Debug("loading announcement failed", logging.Error(err))
			return nil
		}
		n.advance(e)
		n.loaderStarted = false
		n.transition(StateLoadingServer)
	}
	return nil
}

func (n *Node) loadingServer() *FatalError {
	if n.ruling > n.epoch {
		return fatal(n.state, ErrEpochInvariant, "ruling epoch %d, loading epoch %d", n.ruling, n.epoch)
	}
	if n.inState() > n.cfg.LoadingCeiling {
		return fatal(n.state, ErrCeilingExceeded, "loading did not finish in %s", n.cfg.LoadingCeiling)
	}

	if !n.loaderStarted {
		if !n.Model.ReadyForLoading() {
			return nil
		}
		if err := n.Helpers.StartLoader(n.cfg.RepositoryDir, n.cfg.RepositoryFile, n.Model.LoadingComplete); err != nil {
			return fatal(n.state, ErrSpawnFailed, "%v", err)
		}
		n.loaderStarted = true
		return nil
	}

	if n.Helpers.Complete(transfer.KindLoader) {
		return n.finalize(n.epoch)
	}
	if exited, err := n.Helpers.Exited(transfer.KindLoader); exited {
		return fatal(n.state, ErrLoaderFailed, "exit: %v", err)
	}
	return nil
}

func (n *Node) loadingClient() *FatalError {
	if n.Model.LoadingComplete() {
		return n.finalize(n.target)
	}
	if n.inState() > n.cfg.LoadingCeiling {
		return fatal(n.state, ErrCeilingExceeded, "loading at epoch %d did not finish in %s", n.target, n.cfg.LoadingCeiling)
	}
	return nil
}
