// Package testutil holds helpers shared by the HTTP and pipeline tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Epoch is a fixed wall clock instant for tests that need one.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Payload encodes fields as a JSON object, failing the test on error.
func Payload(t testing.TB, fields map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

// Reading builds a controller upload payload.
func Reading(distance, speed float64, severity int, roadScore float64) map[string]interface{} {
	return map[string]interface{}{
		"distance":  distance,
		"speed":     speed,
		"severity":  severity,
		"roadScore": roadScore,
	}
}

// Serve runs one request through h. A non-nil body is sent as JSON.
func Serve(t testing.TB, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON decodes the recorded response body into v.
func DecodeJSON(t testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}
