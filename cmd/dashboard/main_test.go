package main

import (
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"listen", ":8080"},
		{"config", ""},
		{"grpc", ""},
		{"serial", ""},
		{"udp", "false"},
		{"pcap-realtime", "true"},
		{"demo", "false"},
		{"sim", "false"},
		{"sim-seed", "1"},
		{"tui", "false"},
		{"debug", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := flag.Lookup(tt.name)
			require.NotNil(t, f, "flag -%s not registered", tt.name)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, cfg.GetRenderInterval())

	dir := t.TempDir()
	good := filepath.Join(dir, "dash.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"udp_port": 4210, "render_interval": "40ms"}`), 0o600))
	cfg, err = loadConfig(good)
	require.NoError(t, err)
	assert.Equal(t, 4210, cfg.GetUDPPort())
	assert.Equal(t, 40*time.Millisecond, cfg.GetRenderInterval())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"track_width": -1}`), 0o600))
	_, err = loadConfig(bad)
	assert.ErrorContains(t, err, "track_width")

	_, err = loadConfig(filepath.Join(dir, "dash.yaml"))
	assert.Error(t, err)
}

func TestLogRequests(t *testing.T) {
	called := false
	h := logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frame", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
