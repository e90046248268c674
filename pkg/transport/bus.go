package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
)

// Handler receives decoded messages, including this node's own broadcasts.
type Handler interface {
	HandleMessage(msg *Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg *Message)

func (f HandlerFunc) HandleMessage(msg *Message) { f(msg) }

// Bus broadcasts messages to every peer and loops them back to local handlers,
// so a broadcast is applied on the sending node too.
type Bus struct {
	sock   Socket
	logger logging.Logger

	mu       sync.RWMutex
	handlers []Handler

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

const recvPollInterval = 500 * time.Millisecond

// NewBus wraps an opened socket.
func NewBus(sock Socket, logger logging.Logger) *Bus {
	return &Bus{
		sock:   sock,
		logger: logging.OrDefault(logger).With(logging.Component("transport")),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a handler for every inbound and looped-back message.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Start listens on listen, dials every peer and starts the receive loop.
func (b *Bus) Start(listen string, peers []string) error {
	if err := b.sock.SetRecvDeadline(recvPollInterval); err != nil {
		return fmt.Errorf("set recv deadline: %w", err)
	}
	if err := b.sock.Listen(listen); err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}
	for _, peer := range peers {
		if err := b.sock.Dial(peer); err != nil {
			return fmt.Errorf("dial %s: %w", peer, err)
		}
	}

	b.wg.Add(1)
	go b.recvLoop()

	b.logger.Info("bus started", logging.String("listen", listen), logging.Int("peers", len(peers)))
	return nil
}

// Send encodes msg, transmits it and then delivers it locally.
func (b *Bus) Send(msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := b.sock.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	local := *msg
	b.deliver(&local)
	return nil
}

func (b *Bus) deliver(msg *Message) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h.HandleMessage(msg)
	}
}

func (b *Bus) recvLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		default:
		}

		frame, err := b.sock.Recv()
		if err != nil {
			if errors.Is(err, ErrRecvTimeout) {
				continue
			}
			if errors.Is(err, ErrSocketClosed) {
				return
			}
			b.logger.Warn("receive failed", logging.Error(err))
			continue
		}

		msg, err := Decode(frame)
		if err != nil {
			b.logger.Warn("dropping undecodable frame", logging.Error(err), logging.Int("bytes", len(frame)))
			continue
		}
		b.deliver(msg)
	}
}

// Close stops the receive loop and closes the socket.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.sock.Close()
		b.wg.Wait()
	})
	return err
}
