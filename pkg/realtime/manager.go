// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package realtime keeps a live, authenticated socket to the rowbase realtime
// service and turns per-table subscriptions into change callbacks.
//
// A Manager owns one logical connection and one Registry of desired
// subscriptions. The registry is the single source of truth: the connection
// is disposable, and every time it becomes Ready again the manager re-asserts
// each subscription that is not confirmed on the live socket. Delivery is at
// most once. Events missed while disconnected are not replayed, and callers
// needing completeness should re-read current state after a reconnect.
//
// All state transitions run on a single goroutine per Manager; callbacks run
// on a second goroutine, one at a time, in the order events arrived.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rowbase/cli/pkg/query"

	rberrors "rowbase/cli/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/pterm/pterm"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Authenticating
	Ready
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Status is delivered to OnStatus callbacks on every connection transition.
// Err is set when the transition was caused by a failure; a fatal failure
// arrives as the last Status before Done is closed.
type Status struct {
	State   ConnState
	Attempt int
	Err     error
}

// SubscriptionFailure is delivered when the server rejects, never answers or
// drops one subscription.
type SubscriptionFailure struct {
	Handle Handle
	Table  string
	Events EventSet
	Err    error
}

// Settings tunes timeouts and reconnect behaviour.
type Settings struct {
	// HandshakeTimeout bounds dialing plus waiting for the welcome frame.
	HandshakeTimeout time.Duration
	// ConfirmTimeout bounds the wait for a subscribe confirmation.
	ConfirmTimeout time.Duration
	WriteTimeout   time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts is the number of consecutive failed connection attempts
	// after which the manager gives up. Zero retries forever.
	MaxAttempts int
	Logger      *pterm.Logger
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 10 * time.Second,
		ConfirmTimeout:   10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		MaxAttempts:      10,
	}
}

type dialResult struct {
	gen  int
	conn Conn
	err  error
}

// Manager multiplexes table subscriptions over one realtime connection.
type Manager struct {
	url      string
	apiKey   string
	dialer   Dialer
	settings *Settings
	log      *pterm.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	calls     chan func()
	dialed    chan dialResult
	loopDone  chan struct{}
	disp      *dispatcher
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	// owned by the loop goroutine
	registry       *Registry
	state          ConnState
	conn           Conn
	started        bool
	stopped        bool
	attempt        int
	gen            int
	lastSeq        map[string]uint64
	changeHandlers []func(ChangeEvent)
	statusHandlers []func(Status)
	failHandlers   []func(SubscriptionFailure)
	handshake      *time.Timer
	handshakeC     <-chan time.Time
	reconnect      *time.Timer
	reconnectC     <-chan time.Time
}

func NewWithDefaults(url, apiKey string, dialer Dialer) *Manager {
	return New(url, apiKey, dialer, DefaultSettings())
}

// New creates a Manager in the Disconnected state. It does not connect until
// Start is called, so callbacks and subscriptions can be registered first.
func New(url, apiKey string, dialer Dialer, settings *Settings) *Manager {
	if settings == nil {
		settings = DefaultSettings()
	}
	log := settings.Logger
	if log == nil {
		log = pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		url:      url,
		apiKey:   apiKey,
		dialer:   dialer,
		settings: settings,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		calls:    make(chan func()),
		dialed:   make(chan dialResult),
		loopDone: make(chan struct{}),
		disp:     newDispatcher(),
		registry: NewRegistry(),
		lastSeq:  make(map[string]uint64),
	}
	go m.run()
	return m
}

// Start begins connecting. Calling it again has no effect.
func (m *Manager) Start() error {
	return m.do(func() {
		if !m.started {
			m.started = true
			m.dial()
		}
	})
}

// Subscribe registers interest in events on table and returns its handle. An
// empty event set means all events. Subscribing again to the same (table,
// events) while it is pending or confirmed returns the existing handle and
// sends nothing; a failed subscription is requested again.
func (m *Manager) Subscribe(table string, events EventSet) (Handle, error) {
	if !query.ValidField(table) {
		return "", rberrors.Invalid(table, "", "table name must contain only letters, digits and underscores")
	}
	if events&^AllEvents != 0 {
		return "", rberrors.Invalid(table, "", "unknown event type in set")
	}
	if events == 0 {
		events = AllEvents
	}

	var h Handle
	err := m.do(func() {
		s, created := m.registry.Add(table, events)
		h = s.Handle
		if !created && s.State != Failed {
			return
		}
		if !created {
			s.State, s.Err = Pending, nil
		}
		if m.state == Ready {
			m.request(s)
		}
	})
	if err != nil {
		return "", err
	}
	return h, nil
}

// Unsubscribe forgets h and, when connected, tells the server. It always
// succeeds locally; events for the table that are already in flight are
// dropped once no subscription covers them.
func (m *Manager) Unsubscribe(h Handle) {
	_ = m.do(func() {
		s, ok := m.registry.Remove(h)
		if !ok {
			return
		}
		if !m.registry.HasTable(s.Table) {
			delete(m.lastSeq, s.Table)
		}
		if m.state != Ready || (s.State != Confirmed && s.ref == "") {
			return
		}
		f, err := newFrame(FrameUnsubscribe, "", unsubscribePayload{ID: string(h)})
		if err == nil {
			err = m.send(f)
		}
		if err != nil {
			m.log.Debug("realtime: unsubscribe not delivered", m.log.Args("table", s.Table, "error", err))
		}
	})
}

// OnChange registers fn for every change event that matches a confirmed
// subscription.
func (m *Manager) OnChange(fn func(ChangeEvent)) {
	_ = m.do(func() { m.changeHandlers = append(m.changeHandlers, fn) })
}

// OnStatus registers fn for connection state transitions.
func (m *Manager) OnStatus(fn func(Status)) {
	_ = m.do(func() { m.statusHandlers = append(m.statusHandlers, fn) })
}

// OnSubscriptionError registers fn for failures scoped to one subscription.
func (m *Manager) OnSubscriptionError(fn func(SubscriptionFailure)) {
	_ = m.do(func() { m.failHandlers = append(m.failHandlers, fn) })
}

// State reports the state of h and, when Failed, the reason.
func (m *Manager) State(h Handle) (State, error) {
	var (
		st    State
		cause error
		found bool
	)
	if err := m.do(func() {
		if s, ok := m.registry.Get(h); ok {
			st, cause, found = s.State, s.Err, true
		}
	}); err != nil {
		return Failed, err
	}
	if !found {
		return Failed, rberrors.New(rberrors.Subscription, "unknown subscription handle")
	}
	return st, cause
}

// Connection reports the current connection state.
func (m *Manager) Connection() ConnState {
	st := Disconnected
	_ = m.do(func() { st = m.state })
	return st
}

// Done is closed when the manager stops, either through Close or after a
// fatal error.
func (m *Manager) Done() <-chan struct{} { return m.loopDone }

// Err returns the fatal error that stopped the manager, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Close releases the connection and stops the manager for good. No callback
// runs after Close returns. Close must not be called from a callback.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.loopDone
		m.disp.stop()
	})
	return nil
}

// do runs fn on the loop goroutine and waits for it.
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn()
	}
	select {
	case m.calls <- call:
	case <-m.loopDone:
		return rberrors.New(rberrors.Closed, "realtime manager is closed")
	}
	<-done
	return nil
}

func (m *Manager) run() {
	defer close(m.loopDone)
	defer m.teardown()

	sweep := m.settings.ConfirmTimeout / 4
	if sweep < time.Millisecond {
		sweep = time.Millisecond
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for !m.stopped {
		var frames <-chan Frame
		if m.conn != nil {
			frames = m.conn.Frames()
		}

		select {
		case <-m.ctx.Done():
			return
		case fn := <-m.calls:
			fn()
		case r := <-m.dialed:
			m.onDialed(r)
		case f, ok := <-frames:
			if !ok {
				m.onDisconnect(m.conn.Reason())
				continue
			}
			m.onFrame(f)
		case <-m.handshakeC:
			m.handshakeC = nil
			m.lose(rberrors.New(rberrors.Transport, "no welcome frame within handshake timeout"))
		case <-m.reconnectC:
			m.reconnectC = nil
			m.dial()
		case now := <-ticker.C:
			m.expire(now)
		}
	}
}

func (m *Manager) teardown() {
	m.stopTimers()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.registry = NewRegistry()
	m.lastSeq = make(map[string]uint64)
	if m.state != Disconnected {
		m.setState(Disconnected, nil)
	}
}

func (m *Manager) stopTimers() {
	if m.handshake != nil {
		m.handshake.Stop()
		m.handshake, m.handshakeC = nil, nil
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect, m.reconnectC = nil, nil
	}
}

func (m *Manager) setState(state ConnState, err error) {
	if state == m.state && err == nil {
		return
	}
	m.state = state
	st := Status{State: state, Attempt: m.attempt, Err: err}
	handlers := m.statusHandlers
	if len(handlers) == 0 {
		return
	}
	m.disp.enqueue(func() {
		for _, h := range handlers {
			h(st)
		}
	})
}

func (m *Manager) dial() {
	m.stopTimers()
	m.attempt++
	m.gen++
	gen := m.gen
	m.setState(Connecting, nil)
	m.log.Debug("realtime: connecting", m.log.Args("url", m.url, "attempt", m.attempt))

	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.settings.HandshakeTimeout)
		conn, err := m.dialer.Dial(ctx, m.url, m.apiKey)
		cancel()
		select {
		case m.dialed <- dialResult{gen: gen, conn: conn, err: err}:
		case <-m.loopDone:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (m *Manager) onDialed(r dialResult) {
	if r.gen != m.gen || m.state != Connecting {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		return
	}
	if r.err != nil {
		if rberrors.Is(r.err, rberrors.Authentication) {
			m.fail(r.err)
			return
		}
		m.log.Warn("realtime: connect failed", m.log.Args("attempt", m.attempt, "error", r.err))
		m.retry(asTransport("connect", r.err))
		return
	}

	m.conn = r.conn
	m.setState(Authenticating, nil)
	m.handshake = time.NewTimer(m.settings.HandshakeTimeout)
	m.handshakeC = m.handshake.C
}

func (m *Manager) onDisconnect(reason DisconnectReason) {
	m.log.Warn("realtime: disconnected", m.log.Args("reason", reason.String()))
	if reason.Code == CodeUnauthorized {
		m.fail(rberrors.Wrap(rberrors.Authentication, "api key revoked", reason.Err))
		return
	}
	m.lose(asTransport("connection lost", reason.Err))
}

// lose drops the current connection and schedules a reconnect.
func (m *Manager) lose(err error) {
	m.stopTimers()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.registry.Reset()
	m.retry(err)
}

func (m *Manager) retry(err error) {
	if m.settings.MaxAttempts > 0 && m.attempt >= m.settings.MaxAttempts {
		m.fail(rberrors.Wrap(rberrors.Transport, fmt.Sprintf("gave up after %d connection attempts", m.attempt), err))
		return
	}
	wait := backoff(m.attempt+1, m.settings.MinBackoff, m.settings.MaxBackoff)
	m.setState(Disconnected, err)
	m.log.Debug("realtime: reconnect scheduled", m.log.Args("in", wait.String()))
	m.reconnect = time.NewTimer(wait)
	m.reconnectC = m.reconnect.C
}

// fail stops the manager with a fatal error. Every subscription fails with it.
func (m *Manager) fail(err error) {
	m.errMu.Lock()
	m.err = err
	m.errMu.Unlock()

	m.log.Error("realtime: stopped", m.log.Args("error", err))
	m.stopTimers()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	for _, s := range m.registry.All() {
		m.registry.MarkFailed(s, err)
	}
	m.stopped = true
	m.setState(Disconnected, err)
}

func (m *Manager) send(f Frame) error {
	if m.conn == nil {
		return rberrors.New(rberrors.Transport, "not connected")
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.settings.WriteTimeout)
	defer cancel()
	return m.conn.Send(ctx, f)
}

func (m *Manager) onFrame(f Frame) {
	if m.state == Authenticating {
		switch f.Event {
		case FrameWelcome:
			m.ready()
		case FrameAuthError:
			m.fail(rberrors.New(rberrors.Authentication, errorMessage(f, "api key rejected")))
		default:
			m.log.Debug("realtime: frame before welcome dropped", m.log.Args("event", f.Event))
		}
		return
	}
	if m.state != Ready {
		return
	}

	switch f.Event {
	case FrameSubscribed:
		s, ok := m.registry.ByRef(f.Ref)
		if !ok {
			m.log.Debug("realtime: late confirmation discarded", m.log.Args("ref", f.Ref))
			return
		}
		m.registry.MarkConfirmed(s)
		m.log.Info("realtime: subscribed", m.log.Args("table", s.Table, "events", s.Events.String()))

	case FrameSubscribeError:
		s, ok := m.registry.ByRef(f.Ref)
		if !ok {
			return
		}
		m.failSubscription(s, rberrors.New(rberrors.Subscription, errorMessage(f, "subscription rejected")))

	case FrameSubscriptionDropped:
		var p errorPayload
		_ = json.Unmarshal(f.Payload, &p)
		s, ok := m.registry.Get(Handle(p.ID))
		if !ok || s.State == Failed {
			return
		}
		m.failSubscription(s, rberrors.New(rberrors.Subscription, "dropped by server: "+errorMessage(f, "no reason given")))

	case FrameChange:
		m.onChange(f)

	case FrameAuthError:
		m.fail(rberrors.New(rberrors.Authentication, errorMessage(f, "api key rejected")))

	default:
		m.log.Trace("realtime: unknown frame ignored", m.log.Args("event", f.Event))
	}
}

func (m *Manager) ready() {
	m.stopTimers()
	m.attempt = 0
	m.setState(Ready, nil)
	m.log.Info("realtime: ready", m.log.Args("subscriptions", m.registry.Len()))
	for _, s := range m.registry.Unconfirmed() {
		if !m.request(s) {
			return
		}
	}
}

// request sends a subscribe frame for s. It reports false when the send
// broke the connection.
func (m *Manager) request(s *Subscription) bool {
	ref := ulid.Make().String()
	f, err := newFrame(FrameSubscribe, ref, subscribePayload{
		ID:     string(s.Handle),
		Table:  s.Table,
		Events: s.Events.Types(),
	})
	if err != nil {
		m.failSubscription(s, rberrors.Wrap(rberrors.Subscription, "encode subscribe", err))
		return true
	}
	if err := m.send(f); err != nil {
		m.lose(asTransport("send subscribe", err))
		return false
	}
	m.registry.MarkRequested(s, ref, time.Now().Add(m.settings.ConfirmTimeout))
	return true
}

func (m *Manager) expire(now time.Time) {
	for _, s := range m.registry.Expired(now) {
		m.failSubscription(s, rberrors.New(rberrors.Subscription,
			fmt.Sprintf("no confirmation within %s", m.settings.ConfirmTimeout)))
	}
}

func (m *Manager) failSubscription(s *Subscription, err error) {
	m.registry.MarkFailed(s, err)
	m.log.Warn("realtime: subscription failed", m.log.Args("table", s.Table, "error", err))

	handlers := m.failHandlers
	if len(handlers) == 0 {
		return
	}
	sf := SubscriptionFailure{Handle: s.Handle, Table: s.Table, Events: s.Events, Err: err}
	m.disp.enqueue(func() {
		for _, h := range handlers {
			h(sf)
		}
	})
}

func (m *Manager) onChange(f Frame) {
	var p changePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		m.log.Warn("realtime: malformed change frame", m.log.Args("error", err))
		return
	}
	if !m.registry.Matches(p.Table, p.Type) {
		m.log.Trace("realtime: unmatched change dropped", m.log.Args("table", p.Table, "type", string(p.Type)))
		return
	}

	ev := ChangeEvent{Table: p.Table, Type: p.Type, Record: p.Record}
	if p.Sequence != nil {
		seq := *p.Sequence
		if last, ok := m.lastSeq[p.Table]; ok && seq <= last {
			m.log.Debug("realtime: duplicate change dropped", m.log.Args("table", p.Table, "seq", seq))
			return
		}
		m.lastSeq[p.Table] = seq
		ev.Sequence, ev.Sequenced = seq, true
	}

	handlers := m.changeHandlers
	if len(handlers) == 0 {
		return
	}
	m.disp.enqueue(func() {
		for _, h := range handlers {
			h(ev)
		}
	})
}

func errorMessage(f Frame, fallback string) string {
	var p errorPayload
	if err := json.Unmarshal(f.Payload, &p); err == nil && p.Message != "" {
		return p.Message
	}
	return fallback
}

func asTransport(msg string, err error) error {
	if rberrors.KindOf(err) != "" {
		return err
	}
	return rberrors.Wrap(rberrors.Transport, msg, err)
}
