package cluster

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
)

const memberPrefix = "member-"

// zkConn is the subset of *zk.Conn the elector uses.
type zkConn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	State() zk.State
	Close()
}

// ZKElector elects the coordinator through ephemeral sequential znodes.
// The member with the lowest sequence number coordinates; when its session
// ends the znode disappears and the next member takes over.
type ZKElector struct {
	conn   zkConn
	root   string
	self   string
	logger logging.Logger

	mu          sync.RWMutex
	member      string
	coordinator bool
	known       bool

	closeOnce sync.Once
	done      chan struct{}
}

type zkLogger struct {
	logger logging.Logger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewZKElector connects to ZooKeeper. Call Run to join the election.
func NewZKElector(servers []string, root, self string, sessionTimeout time.Duration, logger logging.Logger) (*ZKElector, error) {
	logger = logging.OrDefault(logger).With(logging.Component("zk-elector"))
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(zkLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return newZKElector(conn, root, self, logger)
}

func newZKElector(conn zkConn, root, self string, logger logging.Logger) (*ZKElector, error) {
	if self == "" {
		return nil, ErrInvalidNodeID
	}
	if !strings.HasPrefix(root, "/") {
		return nil, ErrInvalidZooKeeper
	}
	return &ZKElector{
		conn:   conn,
		root:   path.Join(root, "election"),
		self:   self,
		logger: logging.OrDefault(logger),
		done:   make(chan struct{}),
	}, nil
}

// Coordinator reports the outcome of the last evaluation.
func (e *ZKElector) Coordinator() (bool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coordinator, e.known
}

// Run registers this node and re-evaluates the election on every change to
// the member list until ctx is cancelled or Close is called.
func (e *ZKElector) Run(ctx context.Context) {
	for {
		if err := e.step(ctx); err != nil {
			e.setResult(false, false)
			e.logger.Warn("election step failed", logging.Error(err))
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			case <-e.done:
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		default:
		}
	}
}

// step blocks until the member list changes.
func (e *ZKElector) step(ctx context.Context) error {
	if err := e.register(ctx); err != nil {
		return err
	}

	children, _, events, err := e.conn.ChildrenW(e.root)
	if err != nil {
		return fmt.Errorf("zk children: %w", err)
	}
	if err := e.evaluate(children); err != nil {
		return err
	}

	select {
	case ev := <-events:
		e.logger.Debug("election changed", logging.String("event", ev.Type.String()))
	case <-ctx.Done():
	case <-e.done:
	}
	return nil
}

func (e *ZKElector) register(ctx context.Context) error {
	e.mu.RLock()
	member := e.member
	e.mu.RUnlock()
	if member != "" {
		return nil
	}

	if err := e.waitConnected(ctx, 10*time.Second); err != nil {
		return err
	}
	if err := e.ensurePath(e.root); err != nil {
		return fmt.Errorf("ensure election path: %w", err)
	}
	created, err := e.conn.Create(path.Join(e.root, memberPrefix), []byte(e.self),
		zk.FlagEphemeral|zk.FlagSequence, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("create election member: %w", err)
	}

	e.mu.Lock()
	e.member = path.Base(created)
	e.mu.Unlock()
	e.logger.Info("joined election", logging.String("member", path.Base(created)))
	return nil
}

// evaluate decides the election from the current member list. A missing own
// member means the session expired; the next step registers again.
func (e *ZKElector) evaluate(children []string) error {
	members := make([]string, 0, len(children))
	for _, c := range children {
		if strings.HasPrefix(c, memberPrefix) {
			members = append(members, c)
		}
	}
	slices.SortFunc(members, func(a, b string) int {
		return strings.Compare(sequence(a), sequence(b))
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if !slices.Contains(members, e.member) {
		e.member = ""
		e.coordinator, e.known = false, false
		return ErrMemberMissing
	}
	coordinator := members[0] == e.member
	if coordinator != e.coordinator || !e.known {
		e.logger.Info("election decided", logging.Bool("coordinator", coordinator))
	}
	e.coordinator, e.known = coordinator, true
	return nil
}

func (e *ZKElector) setResult(coordinator, known bool) {
	e.mu.Lock()
	e.coordinator, e.known = coordinator, known
	e.mu.Unlock()
}

func sequence(member string) string {
	return member[strings.LastIndex(member, "-")+1:]
}

func (e *ZKElector) ensurePath(p string) error {
	cur := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		exists, _, err := e.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = e.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (e *ZKElector) waitConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := e.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s, state=%v", ErrNotConnected, timeout, st)
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return ErrElectorClosed
		}
	}
}

// Close leaves the election. The ephemeral member goes away with the session.
func (e *ZKElector) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.conn.Close()
	})
	return nil
}
