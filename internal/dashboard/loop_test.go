package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

func TestRunRenderLoop(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := timeutil.NewMockClock(epoch)
	frames := make(chan Frame, 8)
	sink := PresenterFunc(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunRenderLoop(ctx, clock, DefaultRenderInterval, p, sink)
		close(done)
	}()

	p.OnSample(telemetry.Sample{Speed: 80, Timestamp: epoch.UnixMilli()}, epoch)

	var got Frame
	require.Eventually(t, func() bool {
		clock.Advance(DefaultRenderInterval)
		select {
		case got = <-frames:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, got.Speed.Ready)
	require.Equal(t, "80", got.Speed.Text)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("render loop did not stop")
	}
}
