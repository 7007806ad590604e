// Package protocol defines the signaling envelopes exchanged with clients.
// Every envelope is a JSON object with a required "type" discriminator and
// kind-specific fields. Payloads are decoded once at the transport boundary;
// anything unparsable is a malformed envelope and gets dropped there.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

type Kind string

// Inbound kinds.
const (
	KindRegister       Kind = "register"
	KindPing           Kind = "ping"
	KindTypingStatus   Kind = "typing_status"
	KindCallIncoming   Kind = "call_incoming"
	KindUserJoinedCall Kind = "user_joined_call"
	KindCallOffer      Kind = "call_offer"
	KindCallAnswer     Kind = "call_answer"
	KindICECandidate   Kind = "ice_candidate"
	KindCallAccepted   Kind = "call_accepted"
	KindCallRejected   Kind = "call_rejected"
	KindCallEnd        Kind = "call_end"
)

// Outbound-only kinds.
const (
	KindPong            Kind = "pong"
	KindCallBusy        Kind = "call_busy"
	KindCallUnavailable Kind = "call_unavailable"
	KindUserStatus      Kind = "user_status"
)

var ErrMalformed = errors.New("malformed envelope")

type head struct {
	Type Kind `json:"type"`
}

// Peek extracts the kind without decoding the full payload.
func Peek(data []byte) (Kind, error) {
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return "", ErrMalformed
	}
	if h.Type == "" {
		return "", ErrMalformed
	}
	return h.Type, nil
}

// Decode parses a full payload for an already-peeked kind.
func Decode[T any](data []byte) (T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		var zero T
		return zero, ErrMalformed
	}
	return p, nil
}

type Register struct {
	Type   Kind   `json:"type"`
	UserID string `json:"userId"`
}

type Ping struct {
	Type Kind `json:"type"`
}

type Pong struct {
	Type Kind  `json:"type"`
	TS   int64 `json:"ts"`
}

// TypingStatus is relayed to every other connected session; the relay does
// not route it by the to/chatId fields, clients filter on their side.
type TypingStatus struct {
	Type   Kind   `json:"type"`
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	ChatID string `json:"chatId,omitempty"`
	Typing bool   `json:"typing,omitempty"`
}

type CallIncoming struct {
	Type     Kind   `json:"type"`
	From     string `json:"from,omitempty"`
	FromName string `json:"fromName,omitempty"`
	To       string `json:"to"`
	ToName   string `json:"toName,omitempty"`
	IsVideo  bool   `json:"isVideo"`
	ChatID   string `json:"chatId,omitempty"`
	CallID   string `json:"callId,omitempty"` // set by the relay on forward
}

type CallBusy struct {
	Type   Kind   `json:"type"`
	To     string `json:"to"`
	ChatID string `json:"chatId,omitempty"`
}

type CallUnavailable struct {
	Type   Kind   `json:"type"`
	To     string `json:"to"`
	ChatID string `json:"chatId,omitempty"`
}

type UserJoinedCall struct {
	Type   Kind   `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	CallID string `json:"callId,omitempty"`
}

// CallOffer and CallAnswer carry SDP negotiation blobs the relay forwards
// verbatim and never interprets.
type CallOffer struct {
	Type  Kind            `json:"type"`
	From  string          `json:"from,omitempty"`
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

type CallAnswer struct {
	Type   Kind            `json:"type"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

type ICECandidate struct {
	Type      Kind                    `json:"type"`
	From      string                  `json:"from,omitempty"`
	To        string                  `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type CallAccepted struct {
	Type   Kind   `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	CallID string `json:"callId,omitempty"`
}

type CallRejected struct {
	Type   Kind   `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	CallID string `json:"callId,omitempty"`
}

type CallEnd struct {
	Type     Kind   `json:"type"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	CallID   string `json:"callId,omitempty"`
	Duration int64  `json:"duration,omitempty"` // seconds
	Reason   string `json:"reason,omitempty"`
}

// ReasonDisconnected marks a call_end generated by the relay when a
// participant's connection dropped mid-call.
const ReasonDisconnected = "disconnected"

type UserStatus struct {
	Type   Kind   `json:"type"`
	UserID string `json:"userId"`
	Online bool   `json:"online"`
	TS     int64  `json:"ts"`
}
