package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/feed"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

func TestBinding_FeedToProcessor(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := timeutil.NewMockClock(epoch)
	f := feed.New(50, clock)

	_, err := f.Push([]byte(`{"speed":40,"severity":0,"timestamp":1}`))
	require.NoError(t, err)

	b := Bind(f, p, 50, clock)
	defer b.Close()

	_, err = f.Push([]byte(`{"speed":44,"severity":3,"potholes":1,"timestamp":101}`))
	require.NoError(t, err)
	_, err = f.Push([]byte(`["not","telemetry"]`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Stats().MaxSeverity == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, Live, p.Status().State)
	assert.Equal(t, uint64(1), p.Stats().PotholeCount)

	f.Fail(errors.New("permission denied"))
	require.Eventually(t, func() bool { return p.Status().State == Blocked }, time.Second, time.Millisecond)

	b.Resume()
	assert.NoError(t, f.Failure())
	assert.Equal(t, Connecting, p.Status().State)
	_, err = f.Push([]byte(`{"speed":46,"severity":0,"timestamp":201}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Status().State == Live }, time.Second, time.Millisecond)
}

func markerCount(p *Processor) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.state.Markers)
}

func TestBinding_ResumeDoesNotReapply(t *testing.T) {
	p, m := newTestProcessor(t)
	clock := timeutil.NewMockClock(epoch)
	f := feed.New(50, clock)
	b := Bind(f, p, 50, clock)
	defer b.Close()

	for _, payload := range []string{
		`{"speed":0,"severity":3,"timestamp":0}`,
		`{"speed":10,"severity":3,"potholeEvent":true,"timestamp":1000}`,
		`{"speed":20,"severity":3,"timestamp":2000}`,
	} {
		_, err := f.Push([]byte(payload))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.SamplesProcessed) == 3 }, time.Second, time.Millisecond)

	stats := p.Stats()
	markers := markerCount(p)
	assert.Equal(t, 40.0, stats.PeakShock)
	assert.Equal(t, 2, markers)

	f.Fail(errors.New("permission denied"))
	require.Eventually(t, func() bool { return p.Status().State == Blocked }, time.Second, time.Millisecond)
	b.Resume()

	// only the entry pushed after the resume is new
	_, err := f.Push([]byte(`{"speed":30,"severity":3,"timestamp":3000}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.Status().State == Live && testutil.ToFloat64(m.SamplesProcessed) >= 4
	}, time.Second, time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.SamplesProcessed))
	assert.Equal(t, stats, p.Stats())
	assert.Equal(t, markers, markerCount(p))
}
