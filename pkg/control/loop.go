package control

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
)

// Notifier reports lifecycle events to the process supervisor.
type Notifier interface {
	Ready() error
	Status(status string) error
	NotifyFailure(err error) error
}

// Run ticks the node until ctx is done or a fatal error occurs. The fatal
// error is reported to the notifier and returned.
func Run(ctx context.Context, n *Node, notifier Notifier) error {
	interval := n.cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := n.State()
	readyNotified := false
	for {
		if err := n.Tick(); err != nil {
			if notifier != nil {
				if nerr := notifier.NotifyFailure(err); nerr != nil {
					n.logger.Warn("failure notification failed", logging.Error(nerr))
				}
			}
			return err
		}
		n.Metrics.UpdateSystemMetrics()

		if state := n.State(); state != last && notifier != nil {
			last = state
			if err := notifier.Status(fmt.Sprintf("%s epoch=%d", state, n.Epoch())); err != nil {
				n.logger.Debug("status notification failed", logging.Error(err))
			}
			if state == StateReady && !readyNotified {
				readyNotified = true
				if err := notifier.Ready(); err != nil {
					n.logger.Warn("ready notification failed", logging.Error(err))
				}
			}
		}

		select {
		case <-ctx.Done():
			n.logger.Info("control loop stopped", logging.State(n.State().String()))
			return nil
		case <-ticker.C:
		}
	}
}
