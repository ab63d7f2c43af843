// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package wsconn implements realtime.Dialer over gorilla/websocket. Frames are
// JSON text messages; liveness is kept with protocol pings and a read
// deadline that every pong extends.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	rberrors "rowbase/cli/pkg/errors"
	"rowbase/cli/pkg/realtime"
)

// APIKeyParam is the query parameter carrying the API key on the upgrade
// request.
const APIKeyParam = "apikey"

type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs
	// included, before it is considered dead.
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// FrameBuffer is the capacity of the inbound frame channel.
	FrameBuffer int
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     20 * time.Second,
		FrameBuffer:      32,
	}
}

type Dialer struct {
	settings *Settings
	ws       *websocket.Dialer
}

func NewDialerWithDefaults() *Dialer {
	return NewDialer(DefaultSettings())
}

func NewDialer(settings *Settings) *Dialer {
	return &Dialer{
		settings: settings,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
	}
}

// Dial opens the socket. A 401 or 403 on the upgrade is reported as an
// Authentication error; every other failure is a Transport error.
func (d *Dialer) Dial(ctx context.Context, rawURL string, apiKey string) (realtime.Conn, error) {
	target, err := socketURL(rawURL, apiKey)
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Validation, "invalid realtime url", err)
	}

	ws, resp, err := d.ws.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, rberrors.Wrap(rberrors.Authentication, fmt.Sprintf("realtime upgrade rejected with %d", resp.StatusCode), err)
			}
			return nil, rberrors.Wrap(rberrors.Transport, fmt.Sprintf("realtime upgrade failed with %d", resp.StatusCode), err)
		}
		return nil, rberrors.Wrap(rberrors.Transport, "realtime dial failed", err)
	}

	c := &conn{
		ws:       ws,
		settings: d.settings,
		frames:   make(chan realtime.Frame, d.settings.FrameBuffer),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
	ws.SetReadDeadline(time.Now().Add(d.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(d.settings.ReadTimeout))
	})
	go c.read()
	go c.ping()
	return c, nil
}

// socketURL maps http(s) to ws(s) and adds the API key.
func socketURL(rawURL, apiKey string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set(APIKeyParam, apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type conn struct {
	ws       *websocket.Conn
	settings *Settings

	writeMu sync.Mutex

	frames    chan realtime.Frame
	done      chan struct{}
	ended     chan struct{}
	closeOnce sync.Once

	reasonMu sync.Mutex
	reason   realtime.DisconnectReason
}

func (c *conn) Frames() <-chan realtime.Frame { return c.frames }

func (c *conn) Reason() realtime.DisconnectReason {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

func (c *conn) Send(ctx context.Context, f realtime.Frame) error {
	if err := ctx.Err(); err != nil {
		return rberrors.Wrap(rberrors.Transport, "send", err)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return rberrors.Wrap(rberrors.Transport, "encode frame", err)
	}

	deadline := time.Now().Add(c.settings.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		// a write deadline cannot be recovered from; the read loop will end
		_ = c.ws.Close()
		return rberrors.Wrap(rberrors.Transport, "send", err)
	}
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.settings.WriteTimeout))
		_ = c.ws.Close()
	})
	return nil
}

func (c *conn) read() {
	defer close(c.frames)
	defer close(c.ended)

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			c.setReason(err)
			_ = c.ws.Close()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f realtime.Frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			continue
		}
		select {
		case c.frames <- f:
		case <-c.done:
			c.setReason(nil)
			return
		}
	}
}

func (c *conn) ping() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-c.ended:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.settings.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *conn) setReason(err error) {
	r := realtime.DisconnectReason{Code: realtime.CodeAbnormal, Err: err}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		r.Code = ce.Code
		if ce.Text != "" {
			r.Err = errors.New(ce.Text)
		} else {
			r.Err = nil
		}
	}
	select {
	case <-c.done:
		if err == nil || r.Code == realtime.CodeAbnormal {
			r = realtime.DisconnectReason{Code: realtime.CodeNormal}
		}
	default:
	}

	c.reasonMu.Lock()
	c.reason = r
	c.reasonMu.Unlock()
}
