package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/telemetry"
)

func TestSerialSource(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	rec := &recorder{}
	src := NewSerialSource(mux, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mux.Monitor(ctx) }()
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	port.AddReadData([]byte("Connecting to Hotspot....\r\n" +
		"20.00,110,-1,100\r\n" +
		"Severity changed to: 2 | RoadScore: 88\r\n" +
		"Firebase HTTP Code: 200\r\n" +
		"16.50,110,2,88\r\n"))

	got := waitFor(t, rec, 2)
	assert.Equal(t, []telemetry.Reading{
		{Distance: 20, Speed: 110, Severity: -1, RoadScore: 100},
		{Distance: 16.5, Speed: 110, Severity: 2, RoadScore: 88},
	}, got)
	assert.Equal(t, uint64(1), src.Stats().Skipped, "upload chatter is skipped")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSerialSource_MuxClosed(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	src := NewSerialSource(mux, &recorder{})

	require.NoError(t, mux.Close())
	assert.NoError(t, src.Run(context.Background()))
}
