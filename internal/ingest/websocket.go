package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// Reconnect backoff bounds for the upstream websocket.
const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
)

// ErrUpstreamRejected is passed to the fatal hook when the upstream refuses
// the handshake outright. Retrying will not help until someone intervenes.
var ErrUpstreamRejected = errors.New("upstream rejected websocket handshake")

// WSSource follows an upstream websocket whose text messages are controller
// lines or JSON readings, reconnecting with capped exponential backoff.
type WSSource struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnFatal is called when the upstream answers 401 or 403; Run then
	// waits for Resume before dialing again. A typical hook marks the feed
	// as failed.
	OnFatal func(error)

	ing    Ingester
	c      counters
	resume chan struct{}
}

// NewWSSource returns a source for url using the default dialer.
func NewWSSource(url string, ing Ingester) *WSSource {
	return &WSSource{
		URL:            url,
		Dialer:         websocket.DefaultDialer,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		ing:            ing,
		resume:         make(chan struct{}, 1),
	}
}

// Resume lets a Run parked on a rejected handshake dial again.
func (s *WSSource) Resume() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// Run dials and reads until ctx is done. After a rejected handshake it
// stays idle until Resume is called.
func (s *WSSource) Run(ctx context.Context) error {
	backoff := s.InitialBackoff
	for {
		conn, resp, err := s.Dialer.DialContext(ctx, s.URL, s.Header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				fatal := fmt.Errorf("%w: %s", ErrUpstreamRejected, resp.Status)
				monitoring.Logf("[WS] %v", fatal)
				if s.OnFatal != nil {
					s.OnFatal(fatal)
				}
				monitoring.Logf("[WS] waiting for resume")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.resume:
				}
				backoff = s.InitialBackoff
				continue
			}
			monitoring.Logf("[WS] dial error: %v. Retrying in %v...", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			if backoff > s.MaxBackoff {
				backoff = s.MaxBackoff
			}
			continue
		}

		monitoring.Logf("[WS] connected to %s", s.URL)
		backoff = s.InitialBackoff
		select {
		case <-s.resume:
		default:
		}
		err = s.read(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("[WS] connection lost: %v", err)
	}
}

func (s *WSSource) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			s.c.skipped.Add(1)
			continue
		}
		handlePayload(s.ing, &s.c, "WS", msg)
	}
}

// Stats returns the source counters.
func (s *WSSource) Stats() Stats { return s.c.snapshot() }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
