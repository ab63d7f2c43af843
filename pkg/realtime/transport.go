// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import (
	"context"
	"fmt"
)

// Dialer opens authenticated socket connections. Implementations may be real
// WebSocket clients or in-memory fakes for tests.
type Dialer interface {
	// Dial connects to url presenting apiKey. ctx bounds only the dial and
	// upgrade; the returned Conn outlives it. A rejected key must be reported
	// as an errors.Authentication error so the manager stops retrying.
	Dial(ctx context.Context, url string, apiKey string) (Conn, error)
}

// Conn is one live socket.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	// Frames yields inbound frames and is closed when the connection ends.
	Frames() <-chan Frame
	// Reason explains why Frames was closed. Only valid after that.
	Reason() DisconnectReason
	Close() error
}

// DisconnectReason carries the close code and the underlying error, if any.
type DisconnectReason struct {
	Code int
	Err  error
}

func (r DisconnectReason) String() string {
	if r.Err != nil {
		return fmt.Sprintf("code %d: %v", r.Code, r.Err)
	}
	return fmt.Sprintf("code %d", r.Code)
}
