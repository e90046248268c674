package announce

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

type captureMessenger struct {
	sent []transport.Message
	err  error
}

func (c *captureMessenger) Send(msg *transport.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, *msg)
	return nil
}

func TestAnnouncerStampsIdentity(t *testing.T) {
	m := &captureMessenger{}
	a := New(m, "node-1", true, logging.NewNopLogger(), metrics.NewRegistry())

	require.NoError(t, a.Introduce(3, true, false))

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, transport.MsgIntroduce, msg.Type)
	assert.Equal(t, "node-1", msg.NodeID)
	assert.Equal(t, os.Getpid(), msg.Pid)
	assert.Equal(t, int64(3), msg.Epoch)
	assert.True(t, msg.Durable)
	assert.True(t, msg.Coordinator)
	assert.Equal(t, a.Incarnation(), msg.Incarnation)
}

func TestAnnouncerMessageTypes(t *testing.T) {
	m := &captureMessenger{}
	a := New(m, "node-1", false, logging.NewNopLogger(), nil)

	calls := []struct {
		send func() error
		want transport.MessageType
	}{
		{func() error { return a.AnnounceLoading(1) }, transport.MsgAnnounceLoading},
		{func() error { return a.RequestSync(0) }, transport.MsgRequestSync},
		{func() error { return a.AnnounceSync(2, []string{"node-3"}) }, transport.MsgAnnounceSync},
		{func() error { return a.AnnounceDump(2) }, transport.MsgAnnounceDump},
		{func() error { return a.SyncAbort(2) }, transport.MsgSyncAbort},
		{func() error { return a.LoadingDone(1) }, transport.MsgLoadingDone},
		{func() error { return a.SyncDone(2) }, transport.MsgSyncDone},
		{func() error { return a.DiscardImplementer(11) }, transport.MsgDiscardImplementer},
		{func() error { return a.AbortCcb(12) }, transport.MsgAbortCcb},
		{func() error { return a.FinalizeAdminOwner(13) }, transport.MsgFinalizeAdminOwner},
	}

	for i, c := range calls {
		require.NoError(t, c.send())
		assert.Equal(t, c.want, m.sent[i].Type)
	}
	assert.Equal(t, uint32(12), m.sent[8].ObjectID)
}

func TestAnnouncerWrapsFailureAsNotYet(t *testing.T) {
	m := &captureMessenger{err: errors.New("connection refused")}
	a := New(m, "node-1", false, logging.NewNopLogger(), nil)

	err := a.Introduce(0, false, false)
	assert.ErrorIs(t, err, ErrNotYet)
	assert.Contains(t, err.Error(), "connection refused")
}
