package stream

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func startPublisher(t *testing.T, cfg Config) (*Publisher, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	p := NewPublisher(cfg)
	require.NoError(t, p.Serve(lis))
	t.Cleanup(p.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return p, c
}

func testFrame(seq uint64) dashboard.Frame {
	return dashboard.Frame{
		Seq:      seq,
		At:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Speed:    dashboard.Gauge{Value: 142.4, Text: "142", Ready: true},
		Severity: dashboard.SeverityView{Level: 2, Label: "MEDIUM", Text: "MEDIUM (2)", Pill: "SEV MEDIUM", Color: "#fb923c"},
		Stats:    dashboard.SessionStats{PotholeCount: 3, PeakShock: 612.5, MaxSeverity: 2},
		Charts:   map[string][]float64{dashboard.ChartSpeed: {120, 140, 142.4}},
		Flash:    true,
	}
}

func TestStreamFrames(t *testing.T) {
	p, c := startPublisher(t, Config{MaxClients: 2, Every: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := make(chan dashboard.Frame, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- c.StreamFrames(ctx, true, func(f dashboard.Frame) error {
			frames <- f
			return nil
		})
	}()

	require.Eventually(t, func() bool { return p.Stats().ClientCount == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Present(testFrame(7))

	select {
	case got := <-frames:
		want := testFrame(7)
		assert.Equal(t, want.Seq, got.Seq)
		assert.True(t, want.At.Equal(got.At))
		assert.Equal(t, want.Speed, got.Speed)
		assert.Equal(t, want.Severity, got.Severity)
		assert.Equal(t, want.Stats, got.Stats)
		assert.Equal(t, want.Charts, got.Charts)
		assert.True(t, got.Flash)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case err := <-errc:
		assert.Equal(t, codes.Canceled, status.Code(err))
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
	assert.Eventually(t, func() bool { return p.Stats().ClientCount == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStreamFrames_WithoutCharts(t *testing.T) {
	p, c := startPublisher(t, Config{MaxClients: 1, Every: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan dashboard.Frame, 1)
	go func() {
		_ = c.StreamFrames(ctx, false, func(f dashboard.Frame) error {
			got <- f
			return errors.New("done")
		})
	}()

	require.Eventually(t, func() bool { return p.Stats().ClientCount == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Present(testFrame(1))
	select {
	case f := <-got:
		assert.Nil(t, f.Charts)
		assert.Equal(t, uint64(1), f.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestStreamFrames_TooManyClients(t *testing.T) {
	p, c := startPublisher(t, Config{MaxClients: 1, Every: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.StreamFrames(ctx, true, func(dashboard.Frame) error { return nil }) }()
	require.Eventually(t, func() bool { return p.Stats().ClientCount == 1 }, 2*time.Second, 5*time.Millisecond)

	err := c.StreamFrames(ctx, true, func(dashboard.Frame) error { return nil })
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPresent_EveryAndIdle(t *testing.T) {
	p := NewPublisher(Config{Every: 3})
	// not running: ignored
	p.Present(testFrame(1))
	assert.Zero(t, p.Stats().FrameCount)

	p.running.Store(true)
	client := p.addClient(true)
	require.NotNil(t, client)
	for i := uint64(1); i <= 6; i++ {
		p.Present(testFrame(i))
	}
	assert.Equal(t, uint64(2), p.Stats().FrameCount)
	assert.Equal(t, uint64(1), (<-p.frameChan).Seq)
	assert.Equal(t, uint64(4), (<-p.frameChan).Seq)

	p.removeClient(client.id)
	p.Present(testFrame(7))
	assert.Equal(t, uint64(2), p.Stats().FrameCount, "no clients, nothing queued")
}

func TestPresent_DropsWhenFull(t *testing.T) {
	m := monitoring.NewMetrics(nil)
	p := NewPublisher(Config{Every: 1})
	p.SetMetrics(m)
	p.running.Store(true)
	p.addClient(true)

	for i := 0; i < frameQueue+5; i++ {
		p.Present(testFrame(uint64(i)))
	}
	assert.Equal(t, uint64(5), p.Stats().DroppedFrames)
}

func TestFrameToStruct(t *testing.T) {
	s, err := FrameToStruct(testFrame(3), false)
	require.NoError(t, err)
	_, ok := s.GetFields()["charts"]
	assert.False(t, ok)
	assert.Equal(t, "MEDIUM", s.GetFields()["severity"].GetStructValue().GetFields()["label"].GetStringValue())

	back, err := FrameFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), back.Seq)
}
