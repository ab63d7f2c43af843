// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeConn is an in-memory Conn. The test plays the server by pushing frames
// and reading what the manager sent.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	reason DisconnectReason

	frames chan Frame
	sent   chan Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan Frame, 64),
		sent:   make(chan Frame, 64),
	}
}

func (c *fakeConn) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	c.sent <- f
	return nil
}

func (c *fakeConn) Frames() <-chan Frame { return c.frames }

func (c *fakeConn) Reason() DisconnectReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) Close() error {
	c.drop(DisconnectReason{Code: CodeNormal})
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drop ends the connection as if the server or network did.
func (c *fakeConn) drop(r DisconnectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = r
	close(c.frames)
}

// push delivers a server frame; it is a no-op once the connection is closed.
func (c *fakeConn) push(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames <- f
}

func (c *fakeConn) expectSent(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-c.sent:
		return f
	case <-time.After(waitFor):
		t.Fatal("expected a frame from the client")
		return Frame{}
	}
}

func (c *fakeConn) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-c.sent:
		t.Fatalf("unexpected frame %s %s", f.Event, f.Payload)
	case <-time.After(d):
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	errs  []error
	dials int
	conns chan *fakeConn
}

func newFakeDialer(errs ...error) *fakeDialer {
	return &fakeDialer{errs: errs, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("expected the manager to dial")
		return nil
	}
}

func testSettings() *Settings {
	return &Settings{
		HandshakeTimeout: time.Second,
		ConfirmTimeout:   time.Second,
		WriteTimeout:     time.Second,
		MinBackoff:       5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		MaxAttempts:      5,
	}
}

func newTestManager(t *testing.T, d *fakeDialer, s *Settings) *Manager {
	t.Helper()
	if s == nil {
		s = testSettings()
	}
	m := New("ws://rowbase.test/realtime", "key", d, s)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// welcome starts m, answers the handshake and waits for Ready.
func welcome(t *testing.T, m *Manager, d *fakeDialer) *fakeConn {
	t.Helper()
	require.NoError(t, m.Start())
	c := d.next(t)
	c.push(Frame{Event: FrameWelcome})
	waitConn(t, m, Ready)
	return c
}

func waitConn(t *testing.T, m *Manager, want ConnState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Connection() == want }, waitFor, 2*time.Millisecond)
}

func waitSub(t *testing.T, m *Manager, h Handle, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, _ := m.State(h)
		return st == want
	}, waitFor, 2*time.Millisecond)
}

func subscribedID(t *testing.T, f Frame) string {
	t.Helper()
	require.Equal(t, FrameSubscribe, f.Event)
	var p subscribePayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.ID
}

func confirmed(f Frame) Frame {
	return Frame{Event: FrameSubscribed, Ref: f.Ref}
}

func changeFrame(table string, typ EventType, record string) Frame {
	f, _ := newFrame(FrameChange, "", changePayload{Table: table, Type: typ, Record: json.RawMessage(record)})
	return f
}

func seqFrame(table string, seq uint64) Frame {
	f, _ := newFrame(FrameChange, "", changePayload{
		Table:    table,
		Type:     Insert,
		Record:   json.RawMessage(`{"seq":` + itoa(seq) + `}`),
		Sequence: &seq,
	})
	return f
}

func itoa(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func collect(m *Manager) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 64)
	m.OnChange(func(ev ChangeEvent) { ch <- ev })
	return ch
}

func expectEvent(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("expected a change event")
		return ChangeEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan ChangeEvent, d time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s %s %s", ev.Table, ev.Type, ev.Record)
	case <-time.After(d):
	}
}
