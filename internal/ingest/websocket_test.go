package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSSource_ReadsAndReconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"distance":20,"speed":170,"severity":0,"roadScore":100}`))
			_ = c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
			c.Close()
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte("17.00,110,2,88"))
		// hold the second connection open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	src := NewWSSource(wsURL(srv), rec)
	src.InitialBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	got := waitFor(t, rec, 2)
	assert.Equal(t, 0, got[0].Severity)
	assert.Equal(t, 2, got[1].Severity)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.Equal(t, uint64(1), src.Stats().Skipped)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWSSource_RejectedWaitsForResume(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	fatals := make(chan error, 4)
	src := NewWSSource(wsURL(srv), &recorder{})
	src.InitialBackoff = time.Millisecond
	src.OnFatal = func(err error) { fatals <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	select {
	case err := <-fatals:
		assert.True(t, errors.Is(err, ErrUpstreamRejected))
	case <-time.After(time.Second):
		t.Fatal("no fatal report after a rejected handshake")
	}

	// parked: no redial without a resume
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())
	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	src.Resume()
	select {
	case err := <-fatals:
		assert.ErrorIs(t, err, ErrUpstreamRejected)
	case <-time.After(time.Second):
		t.Fatal("no redial after Resume")
	}
	assert.Equal(t, int32(2), attempts.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestWSSource_BackoffCapped(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewWSSource(wsURL(srv), &recorder{})
	src.InitialBackoff = time.Millisecond
	src.MaxBackoff = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := src.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// uncapped doubling from 1ms would manage only a handful in 100ms
	assert.Greater(t, attempts.Load(), int32(8))
}
