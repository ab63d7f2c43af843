// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "rowbase/cli/pkg/errors"
	"rowbase/cli/pkg/realtime"
)

const goodKey = "good-key"

func newServer(t *testing.T, handle func(ws *websocket.Conn)) string {
	t.Helper()
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get(APIKeyParam) != goodKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain blocks until the client goes away.
func drain(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func testSettings() *Settings {
	s := DefaultSettings()
	s.HandshakeTimeout = time.Second
	s.WriteTimeout = time.Second
	s.ReadTimeout = 5 * time.Second
	s.PingInterval = 50 * time.Millisecond
	return s
}

func dial(t *testing.T, url, key string) (realtime.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return NewDialer(testSettings()).Dial(ctx, url, key)
}

func nextFrame(t *testing.T, c realtime.Conn) realtime.Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		require.True(t, ok, "connection ended: %s", c.Reason())
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("expected a frame")
		return realtime.Frame{}
	}
}

func waitClosed(t *testing.T, c realtime.Conn) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Frames():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("connection did not end")
		}
	}
}

func TestDial_RejectedKeyIsAuthentication(t *testing.T) {
	url := newServer(t, drain)

	_, err := dial(t, url, "bad-key")
	require.Error(t, err)
	assert.True(t, rberrors.Is(err, rberrors.Authentication), err.Error())
}

func TestDial_UnsupportedScheme(t *testing.T) {
	_, err := dial(t, "ftp://example.com/realtime", goodKey)
	assert.True(t, rberrors.Is(err, rberrors.Validation))
}

func TestDial_UnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := dial(t, url, goodKey)
	assert.True(t, rberrors.Is(err, rberrors.Transport))
}

func TestSocketURL(t *testing.T) {
	got, err := socketURL("https://api.rowbase.dev/realtime?v=1", "k&y")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.rowbase.dev/realtime?apikey=k%26y&v=1", got)
}

func TestConn_RoundTrip(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteJSON(realtime.Frame{Event: realtime.FrameWelcome})
		var f realtime.Frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		_ = ws.WriteJSON(realtime.Frame{Event: realtime.FrameSubscribed, Ref: f.Ref})
		drain(ws)
	})

	c, err := dial(t, url, goodKey)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, realtime.FrameWelcome, nextFrame(t, c).Event)

	err = c.Send(context.Background(), realtime.Frame{
		Event:   realtime.FrameSubscribe,
		Ref:     "r1",
		Payload: json.RawMessage(`{"id":"h1","table":"orders","events":["INSERT"]}`),
	})
	require.NoError(t, err)

	f := nextFrame(t, c)
	assert.Equal(t, realtime.FrameSubscribed, f.Event)
	assert.Equal(t, "r1", f.Ref)
}

func TestConn_ServerCloseCode(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(realtime.CodeUnauthorized, "key revoked")
		_ = ws.WriteMessage(websocket.CloseMessage, msg)
		drain(ws)
	})

	c, err := dial(t, url, goodKey)
	require.NoError(t, err)
	defer c.Close()

	waitClosed(t, c)
	r := c.Reason()
	assert.Equal(t, realtime.CodeUnauthorized, r.Code)
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "key revoked")
}

func TestConn_LocalClose(t *testing.T) {
	url := newServer(t, drain)

	c, err := dial(t, url, goodKey)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	waitClosed(t, c)
	assert.Equal(t, realtime.CodeNormal, c.Reason().Code)

	err = c.Send(context.Background(), realtime.Frame{Event: realtime.FrameUnsubscribe})
	assert.True(t, rberrors.Is(err, rberrors.Transport))
}

func TestConn_AnswersPings(t *testing.T) {
	pongs := make(chan struct{}, 8)
	url := newServer(t, func(ws *websocket.Conn) {
		ws.SetPingHandler(func(data string) error {
			pongs <- struct{}{}
			return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		drain(ws)
	})

	c, err := dial(t, url, goodKey)
	require.NoError(t, err)
	defer c.Close()

	select {
	case <-pongs:
	case <-time.After(2 * time.Second):
		t.Fatal("client sent no ping")
	}
}

func TestManagerOverWebsocket(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteJSON(realtime.Frame{Event: realtime.FrameWelcome})
		var f realtime.Frame
		if err := ws.ReadJSON(&f); err != nil || f.Event != realtime.FrameSubscribe {
			return
		}
		_ = ws.WriteJSON(realtime.Frame{Event: realtime.FrameSubscribed, Ref: f.Ref})
		_ = ws.WriteJSON(realtime.Frame{
			Event:   realtime.FrameChange,
			Payload: json.RawMessage(`{"table":"orders","type":"INSERT","record":{"id":7},"seq":1}`),
		})
		drain(ws)
	})

	rs := realtime.DefaultSettings()
	rs.HandshakeTimeout = 2 * time.Second
	m := realtime.New(url, goodKey, NewDialer(testSettings()), rs)
	defer m.Close()

	events := make(chan realtime.ChangeEvent, 4)
	m.OnChange(func(ev realtime.ChangeEvent) { events <- ev })
	_, err := m.Subscribe("orders", realtime.OnInsert)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	select {
	case ev := <-events:
		assert.Equal(t, "orders", ev.Table)
		assert.Equal(t, realtime.Insert, ev.Type)
		assert.JSONEq(t, `{"id":7}`, string(ev.Record))
		assert.Equal(t, uint64(1), ev.Sequence)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event delivered")
	}
}
