// Package ipc provides the control channel between the keyrxd daemon and
// client tools (CLI, scripts).
//
// The protocol is length-prefixed binary framing with JSON payloads:
// a fixed header carrying magic, version, message type, and a request ID for
// correlation, followed by the payload bytes.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4B495043 // "KIPC"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx).
	MsgPing     MessageType = 0x0001
	MsgPong     MessageType = 0x0002
	MsgError    MessageType = 0x0003
	MsgShutdown MessageType = 0x0004

	// Status and state (0x01xx).
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101
	MsgStateRequest   MessageType = 0x0102
	MsgStateResponse  MessageType = 0x0103
	MsgDevicesRequest MessageType = 0x0104
	MsgDevicesResp    MessageType = 0x0105

	// Profile operations (0x02xx).
	MsgReloadRequest  MessageType = 0x0200
	MsgReloadResponse MessageType = 0x0201

	// Simulation (0x03xx).
	MsgSimulateRequest  MessageType = 0x0300
	MsgSimulateResponse MessageType = 0x0301
)

// Header is the fixed-size message header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// HeaderSize is the wire size of the header in bytes.
const HeaderSize = 16

// MaxPayload bounds a single message payload.
const MaxPayload = 16 * 1024 * 1024

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message of the given type.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the full message to w.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads one complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Encode marshals a payload and wraps it in a message.
func Encode(msgType MessageType, requestID uint32, payload any) (*Message, error) {
	if payload == nil {
		return NewMessage(msgType, requestID, nil), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return NewMessage(msgType, requestID, data), nil
}

// Decode unmarshals a message payload into v.
func Decode(m *Message, v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty payload for message type %#04x", uint16(m.Header.Type))
	}
	return json.Unmarshal(m.Payload, v)
}

// Request/response payloads.

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrCompileFailed  = 3
	ErrInternalError  = 4
	ErrUnavailable    = 5
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version         string    `json:"version"`
	StartedAt       time.Time `json:"started_at"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	ProfileSource   string    `json:"profile_source"`
	SourceHash      string    `json:"source_hash"`
	CompilerVersion string    `json:"compiler_version"`
	Devices         int       `json:"devices"`
	EventsProcessed uint64    `json:"events_processed"`
	EventsDropped   uint64    `json:"events_dropped"`
}

// StateResponse is the engine's shared-state snapshot.
type StateResponse struct {
	Modifiers []uint8           `json:"modifiers"`
	Locks     []uint8           `json:"locks"`
	Layers    map[string]uint16 `json:"layers"`
}

// DeviceInfo describes one managed device.
type DeviceInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Pattern  string    `json:"pattern,omitempty"`
	LastSeen time.Time `json:"last_seen"`
	Attached bool      `json:"attached"`
}

// DevicesResponse lists known devices.
type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// ReloadRequest asks the daemon to recompile and swap the profile.
type ReloadRequest struct {
	// Path overrides the configured source for this reload only.
	Path string `json:"path,omitempty"`
}

// ReloadResponse reports the reload outcome.
type ReloadResponse struct {
	Success    bool   `json:"success"`
	SourceHash string `json:"source_hash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SimulateRequest runs an event script against a configuration without
// touching real devices.
type SimulateRequest struct {
	// Config is the mapping source to compile. Empty uses the daemon's
	// active profile.
	Config string `json:"config,omitempty"`
	Script string `json:"script"`
}

// SimulateResponse carries the simulation transcript.
type SimulateResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}
