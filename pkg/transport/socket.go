package transport

import (
	"errors"
	"io"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/bus"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// Socket represents a messaging socket that can send and receive frames.
// This interface abstracts the underlying transport (mangos, or a mock for testing).
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	Listen(addr string) error
	Dial(addr string) error
	SetRecvDeadline(d time.Duration) error
}

var (
	ErrSocketClosed = errors.New("socket closed")
	ErrRecvTimeout  = errors.New("receive timed out")
)

// busSocket wraps a mangos BUS socket to implement Socket.
type busSocket struct {
	sock mangos.Socket
}

// NewBusSocket opens a mangos BUS socket. Every frame sent is delivered to
// all directly connected peers.
func NewBusSocket() (Socket, error) {
	sock, err := bus.NewSocket()
	if err != nil {
		return nil, err
	}
	return &busSocket{sock: sock}, nil
}

func (s *busSocket) Send(data []byte) error {
	return translate(s.sock.Send(data))
}

func (s *busSocket) Recv() ([]byte, error) {
	data, err := s.sock.Recv()
	return data, translate(err)
}

func (s *busSocket) Close() error {
	return s.sock.Close()
}

func (s *busSocket) Listen(addr string) error {
	return s.sock.Listen(addr)
}

// Dial connects asynchronously so peers that are not up yet are retried by mangos.
func (s *busSocket) Dial(addr string) error {
	return s.sock.DialOptions(addr, map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
}

func (s *busSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mangos.ErrClosed):
		return ErrSocketClosed
	case errors.Is(err, mangos.ErrRecvTimeout):
		return ErrRecvTimeout
	default:
		return err
	}
}
