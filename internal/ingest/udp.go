package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenUDP opens a UDP socket on port across all interfaces.
func ListenUDP(port int) (UDPSocket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp port %d: %w", port, err)
	}
	return conn, nil
}

const (
	maxDatagram  = 2048
	pollInterval = 500 * time.Millisecond
)

// UDPSource reads controller datagrams, one or more lines each.
type UDPSource struct {
	sock UDPSocket
	ing  Ingester
	c    counters
}

// NewUDPSource returns a source reading from sock. Run closes the socket.
func NewUDPSource(sock UDPSocket, ing Ingester) *UDPSource {
	return &UDPSource{sock: sock, ing: ing}
}

// Run reads until ctx is done. Read deadlines are used so cancellation is
// noticed within pollInterval.
func (s *UDPSource) Run(ctx context.Context) error {
	defer s.sock.Close()
	monitoring.Logf("[UDP] listening on %s", s.sock.LocalAddr())

	buf := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sock.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
		n, _, err := s.sock.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("udp read failed: %w", err)
		}
		handlePayload(s.ing, &s.c, "UDP", buf[:n])
	}
}

// Stats returns the source counters.
func (s *UDPSource) Stats() Stats { return s.c.snapshot() }
