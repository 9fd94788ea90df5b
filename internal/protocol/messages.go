// Package protocol defines the JSON wire messages exchanged with browser
// peers and the identifier grammars they carry.
//
// Inbound messages are decoded as an envelope of known control fields plus
// the raw frame bytes. Handshake relay messages (offer/answer/ice-candidate)
// carry arbitrary payload fields the broker never interprets, so decoding is
// deliberately not strict about unknown fields: the payload is forwarded
// verbatim with the sender identity stamped by the server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

// Client -> server message types.
const (
	TypeHello        MessageType = "hello"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeQueryRoom    MessageType = "query-room"
	TypeRegisterHost MessageType = "register-host"
	TypeClaimHost    MessageType = "claim-host"
	TypeJoinRoom     MessageType = "join-room"
	TypeLeaveRoom    MessageType = "leave-room"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
)

// Server -> client message types.
const (
	TypePeerID              MessageType = "peer-id"
	TypeHeartbeatAck        MessageType = "heartbeat-ack"
	TypeRoomInfo            MessageType = "room-info"
	TypeRegisterHostSuccess MessageType = "register-host-success"
	TypeRegisterHostFailed  MessageType = "register-host-failed"
	TypeClaimHostSuccess    MessageType = "claim-host-success"
	TypeClaimHostFailed     MessageType = "claim-host-failed"
	TypeJoinRoomSuccess     MessageType = "join-room-success"
	TypeJoinRoomFailed      MessageType = "join-room-failed"
	TypePeerConnecting      MessageType = "peer-connecting"
	TypeHostDisconnected    MessageType = "host-disconnected"
	TypeHostReconnected     MessageType = "host-reconnected"
	TypeRoomClosed          MessageType = "room-closed"
	TypeError               MessageType = "error"
)

// IsRelay reports whether t is a handshake envelope forwarded verbatim to a
// target peer.
func (t MessageType) IsRelay() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	default:
		return false
	}
}

// IsClientType reports whether t is a message type the broker routes.
// Anything else inbound is silently ignored.
func (t MessageType) IsClientType() bool {
	switch t {
	case TypeHello, TypeHeartbeat, TypeQueryRoom, TypeRegisterHost,
		TypeClaimHost, TypeJoinRoom, TypeLeaveRoom,
		TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	default:
		return false
	}
}

// ClientMessage is the decoded control envelope of an inbound frame.
//
// Raw holds the full frame bytes so relay messages can be forwarded without
// re-encoding their payload.
type ClientMessage struct {
	Type         MessageType
	SessionToken string
	RoomID       string
	TargetPeerID string

	Raw []byte
}

type clientEnvelope struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
	RoomID       string `json:"roomId"`
	TargetPeerID string `json:"targetPeerId"`
}

// ParseClientMessage decodes the control fields of an inbound frame.
//
// A decode failure or a missing type is a validation error; an unknown type
// parses successfully (the dispatcher ignores it without replying, so hostile
// clients cannot use unknown types to amplify traffic or logs).
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, &WireError{Kind: ErrorTypeValidation, Reason: ReasonMalformedJSON, cause: err}
	}
	if env.Type == "" {
		return ClientMessage{}, &WireError{Kind: ErrorTypeValidation, Reason: ReasonMalformedJSON, cause: errors.New("missing type")}
	}
	return ClientMessage{
		Type:         MessageType(env.Type),
		SessionToken: env.SessionToken,
		RoomID:       env.RoomID,
		TargetPeerID: env.TargetPeerID,
		Raw:          data,
	}, nil
}

// Validate checks the per-type required fields and identifier grammars,
// returning a *WireError that maps directly onto an error reply. Unknown
// types validate trivially; the caller decides to ignore them.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case TypeHello:
		if m.SessionToken == "" {
			return missingField("sessionToken")
		}
		if !ValidSessionToken(m.SessionToken) {
			return &WireError{Kind: ErrorTypeValidation, Reason: ReasonMalformedToken}
		}
	case TypeQueryRoom, TypeRegisterHost, TypeClaimHost, TypeJoinRoom:
		if m.RoomID == "" {
			return missingField("roomId")
		}
		if !ValidRoomID(m.RoomID) {
			return &WireError{Kind: ErrorTypeValidation, Reason: ReasonMalformedRoomID}
		}
	case TypeOffer, TypeAnswer, TypeICECandidate:
		if m.TargetPeerID == "" {
			return missingField("targetPeerId")
		}
		if !ValidPeerID(m.TargetPeerID) {
			return &WireError{Kind: ErrorTypeValidation, Reason: ReasonMalformedPeerID}
		}
	case TypeHeartbeat, TypeLeaveRoom:
		// No required fields.
	}
	return nil
}

func missingField(field string) *WireError {
	return &WireError{Kind: ErrorTypeProtocol, Reason: ReasonMissingField, cause: errors.New(field)}
}

// StampRelay rewrites a relay frame for delivery: targetPeerId is removed and
// fromPeerId is set to the server-verified sender identity. All other fields
// pass through byte-for-byte, including any the broker does not understand.
// A client-supplied fromPeerId is overwritten, never trusted.
func StampRelay(raw []byte, fromPeerID string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("malformed relay payload: %w", err)
	}
	delete(fields, "targetPeerId")

	from, err := json.Marshal(fromPeerID)
	if err != nil {
		return nil, err
	}
	fields["fromPeerId"] = from

	return json.Marshal(fields)
}

// ErrorType classifies wire-level failures.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeCapacity   ErrorType = "capacity"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeBackend    ErrorType = "backend"
)

// WireError is a fault expressed as the error reply it produces.
type WireError struct {
	Kind   ErrorType
	Reason string

	cause error
}

func (e *WireError) Error() string {
	if e.cause != nil {
		return e.Reason + ": " + e.cause.Error()
	}
	return e.Reason
}

func (e *WireError) Unwrap() error { return e.cause }

// Machine-readable reasons carried in error replies.
const (
	ReasonMalformedJSON     = "malformed_json"
	ReasonMalformedToken    = "malformed_session_token"
	ReasonMalformedRoomID   = "malformed_room_id"
	ReasonMalformedPeerID   = "malformed_peer_id"
	ReasonMissingField      = "missing_field"
	ReasonHelloRequired     = "hello_required"
	ReasonAlreadyIdentified = "already_identified"
	ReasonConnectionLimit   = "connection_limit"
	ReasonRateLimited       = "rate_limited"
	ReasonUnknownTargetPeer = "unknown_target_peer"
	ReasonStoreUnavailable  = "store_unavailable"
)

// Reasons carried in register/claim/join failure replies.
const (
	FailReasonHostActive   = "host_active"
	FailReasonRoomNotFound = "room_not_found"
	FailReasonNoActiveHost = "no_active_host"
)

// Server reply shapes. Fields that are meaningful when empty (restored,
// exists) are encoded unconditionally.

type PeerIDMessage struct {
	Type     MessageType `json:"type"`
	PeerID   string      `json:"peerId"`
	Restored bool        `json:"restored"`
	RoomID   string      `json:"roomId,omitempty"`
}

type HeartbeatAckMessage struct {
	Type MessageType `json:"type"`
}

type RoomInfoMessage struct {
	Type       MessageType `json:"type"`
	RoomID     string      `json:"roomId"`
	Exists     bool        `json:"exists"`
	HostPeerID string      `json:"hostPeerId,omitempty"`
}

type RoomResultMessage struct {
	Type       MessageType `json:"type"`
	RoomID     string      `json:"roomId"`
	HostPeerID string      `json:"hostPeerId,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

type PeerConnectingMessage struct {
	Type   MessageType `json:"type"`
	PeerID string      `json:"peerId"`
}

type RoomEventMessage struct {
	Type       MessageType `json:"type"`
	RoomID     string      `json:"roomId"`
	HostPeerID string      `json:"hostPeerId,omitempty"`
}

type ErrorMessage struct {
	Type      MessageType `json:"type"`
	ErrorType ErrorType   `json:"errorType"`
	Reason    string      `json:"reason"`
}

// MustEncode marshals a reply struct. The reply shapes above cannot fail to
// marshal; a failure indicates a programming error.
func MustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %T: %v", v, err))
	}
	return data
}
