package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	ready    int
	statuses []string
	failures []error
}

func (n *fakeNotifier) Ready() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready++
	return nil
}

func (n *fakeNotifier) Status(status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
	return nil
}

func (n *fakeNotifier) NotifyFailure(err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
	return nil
}

func (n *fakeNotifier) readyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready
}

func TestRunNotifiesFailure(t *testing.T) {
	h := newHarness(func(h *harness) {
		h.cfg.TickInterval = time.Millisecond
		h.roles.eligibility = 1
		h.roles.coordinator = true
		h.roles.nodeCount = 2
		h.launcher.exitAtStart = true
	})
	notifier := &fakeNotifier{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Run(ctx, h.node, notifier)
	requireFatal(t, err, ErrLoaderFailed)

	require.Len(t, notifier.failures, 1)
	assert.ErrorIs(t, notifier.failures[0], ErrLoaderFailed)
	assert.Zero(t, notifier.ready)
	assert.Contains(t, notifier.statuses, "loading_server epoch=1")
}

func TestRunNotifiesReadyOnceAndStops(t *testing.T) {
	h := newHarness(func(h *harness) {
		h.cfg.TickInterval = time.Millisecond
		h.roles.eligibility = 1
		h.roles.coordinator = true
		h.roles.nodeCount = 2
		h.model.loadingComplete = true
	})
	notifier := &fakeNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, h.node, notifier)
	}()

	assert.Eventually(t, func() bool { return notifier.readyCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 1, notifier.readyCount())
	assert.Equal(t, "ready", h.node.Snapshot().State)
}
