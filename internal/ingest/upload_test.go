package ingest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/feed"
	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

func TestHTTPUploader_Ingest(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"ok":true}`)
	clock := timeutil.NewMockClock(time.UnixMilli(1_700_000_000_000))
	u := &HTTPUploader{Client: mock, URL: "http://car.local/api/road-data", Clock: clock}

	rec, err := u.Ingest(telemetry.Reading{Distance: 16.5, Speed: 110, Severity: 2, RoadScore: 88})
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), rec.Timestamp)
	assert.Equal(t, 2, rec.Severity)

	req, body := mock.Request(0)
	require.NotNil(t, req)
	assert.Equal(t, "http://car.local/api/road-data", req.URL.String())
	assert.JSONEq(t, `{"distance":16.5,"speed":110,"severity":2,"roadScore":88}`, string(body))
}

func TestHTTPUploader_Rejected(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, `{"error":"feed closed"}`)
	u := &HTTPUploader{Client: mock, URL: "http://car.local/api/road-data"}

	_, err := u.Ingest(telemetry.Reading{})
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestSimulator_UploadsToRelay(t *testing.T) {
	f := feed.New(0, nil)
	relay := feed.NewRelay(f, nil)
	mux := http.NewServeMux()
	relay.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u := NewHTTPUploader(srv.URL)
	sim := NewSimulator(BumpProfile(20, time.Second, 300*time.Millisecond, 3.5), timeutil.NewMockClock(time.Unix(0, 0)), 1)
	for ms := 0; ms <= 4000; ms += 60 {
		sim.StepAt(time.Duration(ms)*time.Millisecond, u)
	}

	st := sim.Stats()
	assert.Zero(t, st.Failed)
	require.NotZero(t, st.Accepted)
	assert.Equal(t, st.Accepted, f.Stats().Appended)
	assert.NotZero(t, relay.PotholeCount())
}
