// Package transport carries control and model messages between nodes.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// MessageType represents the type of cluster message
type MessageType uint8

const (
	// Membership and bulk-transfer control
	MsgIntroduce MessageType = iota + 1
	MsgAnnounceLoading
	MsgRequestSync
	MsgAnnounceSync
	MsgAnnounceDump
	MsgSyncAbort
	MsgLoadingDone
	MsgSyncDone

	// Cleanup on behalf of dead clients and expired work
	MsgDiscardImplementer
	MsgAbortCcb
	MsgFinalizeAdminOwner
)

var messageTypeNames = map[MessageType]string{
	MsgIntroduce:          "introduce",
	MsgAnnounceLoading:    "announce_loading",
	MsgRequestSync:        "request_sync",
	MsgAnnounceSync:       "announce_sync",
	MsgAnnounceDump:       "announce_dump",
	MsgSyncAbort:          "sync_abort",
	MsgLoadingDone:        "loading_done",
	MsgSyncDone:           "sync_done",
	MsgDiscardImplementer: "discard_implementer",
	MsgAbortCcb:           "abort_ccb",
	MsgFinalizeAdminOwner: "finalize_admin_owner",
}

// String returns the wire-independent name of a message type
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Message is the single envelope for everything sent over the bus.
type Message struct {
	Type        MessageType `json:"type"`
	NodeID      string      `json:"node_id"`
	Incarnation string      `json:"incarnation"`
	Pid         int         `json:"pid"`
	Epoch       int64       `json:"epoch"`
	Durable     bool        `json:"durable"`
	Coordinator bool        `json:"coordinator,omitempty"`
	Ready       bool        `json:"ready,omitempty"`
	ObjectID    uint32      `json:"object_id,omitempty"`
	Targets     []string    `json:"targets,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

var (
	ErrEmptyFrame     = errors.New("empty frame")
	ErrUnknownMessage = errors.New("unknown message type")
)

// Encode serializes a message as snappy-compressed JSON.
func Encode(msg *Message) ([]byte, error) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	raw, err := snappy.Decode(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if _, ok := messageTypeNames[msg.Type]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, msg.Type)
	}
	return &msg, nil
}
