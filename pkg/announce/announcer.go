// Package announce sends this node's membership, transfer and cleanup
// messages to the cluster.
package announce

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

// ErrNotYet reports that a message could not be handed to the transport.
// Callers stay in their current state and retry on a later tick.
var ErrNotYet = errors.New("cluster messaging not available yet")

// Messenger is the transport seam; *transport.Bus satisfies it.
type Messenger interface {
	Send(msg *transport.Message) error
}

// Announcer stamps every outbound message with the node identity, process id
// and durability flag.
type Announcer struct {
	messenger   Messenger
	nodeID      string
	incarnation string
	pid         int
	durable     bool

	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates an announcer. A fresh incarnation id distinguishes this process
// from earlier runs of the same node.
func New(m Messenger, nodeID string, durable bool, logger logging.Logger, reg *metrics.Registry) *Announcer {
	return &Announcer{
		messenger:   m,
		nodeID:      nodeID,
		incarnation: uuid.New().String(),
		pid:         os.Getpid(),
		durable:     durable,
		logger:      logging.OrDefault(logger).With(logging.Component("announce")),
		metrics:     reg,
	}
}

// Incarnation returns the per-process identity carried in every message.
func (a *Announcer) Incarnation() string {
	return a.incarnation
}

func (a *Announcer) send(msg transport.Message) error {
	msg.NodeID = a.nodeID
	msg.Incarnation = a.incarnation
	msg.Pid = a.pid
	msg.Durable = a.durable

	err := a.messenger.Send(&msg)
	a.metrics.RecordAnnouncement(msg.Type.String(), err)
	if err != nil {
		a.logger.Debug("send failed", logging.String("type", msg.Type.String()), logging.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrNotYet, msg.Type, err)
	}
	return nil
}

// Introduce tells the cluster which epoch this node holds. ready marks a node
// that finished loading or syncing.
func (a *Announcer) Introduce(epoch int64, coordinator, ready bool) error {
	return a.send(transport.Message{
		Type:        transport.MsgIntroduce,
		Epoch:       epoch,
		Coordinator: coordinator,
		Ready:       ready,
	})
}

// AnnounceLoading claims the initial load at epoch.
func (a *Announcer) AnnounceLoading(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgAnnounceLoading, Epoch: epoch})
}

// RequestSync asks the coordinator to bring this node up to date.
func (a *Announcer) RequestSync(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgRequestSync, Epoch: epoch})
}

// AnnounceSync starts a sync round that ends at epoch for the listed nodes.
func (a *Announcer) AnnounceSync(epoch int64, targets []string) error {
	return a.send(transport.Message{Type: transport.MsgAnnounceSync, Epoch: epoch, Targets: targets})
}

// AnnounceDump tells peers the coordinator is regenerating the durable image at epoch.
func (a *Announcer) AnnounceDump(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgAnnounceDump, Epoch: epoch})
}

// SyncAbort cancels the sync round for epoch.
func (a *Announcer) SyncAbort(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgSyncAbort, Epoch: epoch})
}

// LoadingDone reports that the loader output for epoch has been ingested.
func (a *Announcer) LoadingDone(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgLoadingDone, Epoch: epoch})
}

// SyncDone reports that the sync agent output for epoch has been ingested.
func (a *Announcer) SyncDone(epoch int64) error {
	return a.send(transport.Message{Type: transport.MsgSyncDone, Epoch: epoch})
}

// DiscardImplementer removes an implementer role cluster-wide.
func (a *Announcer) DiscardImplementer(id uint32) error {
	return a.send(transport.Message{Type: transport.MsgDiscardImplementer, ObjectID: id})
}

// AbortCcb aborts a change bundle cluster-wide.
func (a *Announcer) AbortCcb(id uint32) error {
	return a.send(transport.Message{Type: transport.MsgAbortCcb, ObjectID: id})
}

// FinalizeAdminOwner hard-finalizes an admin owner cluster-wide.
func (a *Announcer) FinalizeAdminOwner(id uint32) error {
	return a.send(transport.Message{Type: transport.MsgFinalizeAdminOwner, ObjectID: id})
}
