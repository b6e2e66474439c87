package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// DefaultUploadTimeout bounds a single upload.
const DefaultUploadTimeout = 5 * time.Second

// HTTPUploader posts readings to a relay's /api/road-data endpoint, the way
// the vehicle controller does over WiFi. It satisfies Ingester so a
// Simulator can drive a remote dashboard.
type HTTPUploader struct {
	Client  httputil.HTTPClient
	URL     string
	Timeout time.Duration
	Clock   timeutil.Clock
}

// NewHTTPUploader uploads to baseURL + "/api/road-data".
func NewHTTPUploader(baseURL string) *HTTPUploader {
	return &HTTPUploader{
		Client:  &http.Client{},
		URL:     baseURL + "/api/road-data",
		Timeout: DefaultUploadTimeout,
		Clock:   timeutil.RealClock{},
	}
}

// Ingest posts r. The relay stamps pothole counts itself, so the returned
// record only carries the local upload time.
func (u *HTTPUploader) Ingest(r telemetry.Reading) (telemetry.Record, error) {
	ctx := context.Background()
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}
	if err := httputil.PostJSON(ctx, u.Client, u.URL, r, nil); err != nil {
		return telemetry.Record{}, err
	}
	clock := u.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return r.Stamp(0, false, clock.Now().UnixMilli()), nil
}
