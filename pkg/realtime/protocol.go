// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import "encoding/json"

// Frame names on the realtime socket.
const (
	// client -> server
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"

	// server -> client
	FrameWelcome             = "welcome"
	FrameAuthError           = "auth_error"
	FrameSubscribed          = "subscribed"
	FrameSubscribeError      = "subscribe_error"
	FrameSubscriptionDropped = "subscription_dropped"
	FrameChange              = "change"
)

// Close codes reported in DisconnectReason. 1xxx follow RFC 6455; 4xxx are
// application codes sent by the server.
const (
	CodeNormal       = 1000
	CodeGoingAway    = 1001
	CodeAbnormal     = 1006
	CodeUnauthorized = 4001
)

// Frame is one message on the socket.
type Frame struct {
	Event   string          `json:"event"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	ID     string      `json:"id"`
	Table  string      `json:"table"`
	Events []EventType `json:"events"`
}

type unsubscribePayload struct {
	ID string `json:"id"`
}

type errorPayload struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

type changePayload struct {
	Table    string          `json:"table"`
	Type     EventType       `json:"type"`
	Record   json.RawMessage `json:"record"`
	Sequence *uint64         `json:"seq,omitempty"`
}

func newFrame(event, ref string, payload any) (Frame, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Ref: ref, Payload: b}, nil
}
