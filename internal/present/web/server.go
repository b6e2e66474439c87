package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/version"
)

//go:embed static
var staticFiles embed.FS

// StatusSource reports connectivity and session totals. *dashboard.Processor
// implements it.
type StatusSource interface {
	Status() dashboard.Status
	Stats() dashboard.SessionStats
}

// Server wires the dashboard's HTTP surface onto a mux.
type Server struct {
	Hub    *Hub
	Status StatusSource
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Vars are extra live values shown on the debug page and in /api/status,
	// such as feed or ingest counters.
	Vars map[string]func() interface{}
}

// RegisterRoutes attaches the dashboard endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/events", s.Hub.ServeEvents)
	mux.HandleFunc("/ws", s.Hub.ServeWS)
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/charts", s.handleChartPage)
	mux.HandleFunc("/charts/", s.handleChartPNG)

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.Version)
	debug.KVFunc("Frames", func() any { return s.Hub.Stats() })
	if s.Status != nil {
		debug.KVFunc("Feed status", func() any { return s.Status.Status().Text() })
		debug.KVFunc("Session", func() any { return s.Status.Stats() })
	}
	for name, fn := range s.Vars {
		debug.KVFunc(name, fn)
	}
	debug.URL("/charts", "rolling charts")
	debug.URL("/api/frame", "latest frame (JSON)")
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	frame, ok := s.Hub.Latest()
	if !ok {
		httputil.NotFound(w, "no frame rendered yet")
		return
	}
	httputil.WriteJSONOK(w, frame)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := map[string]interface{}{
		"version": version.Version,
		"hub":     s.Hub.Stats(),
	}
	if s.Status != nil {
		st := s.Status.Status()
		resp["status"] = map[string]string{
			"state":   st.State.String(),
			"text":    st.Text(),
			"message": st.Message,
		}
		resp["stats"] = s.Status.Stats()
	}
	for name, fn := range s.Vars {
		resp[name] = fn()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleChartPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	frame, _ := s.Hub.Latest()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderChartPage(w, frame); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

// handleChartPNG serves /charts/{speed,distance,shock}.png. Optional w and h
// query parameters set the size in pixels.
func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name, ok := chartFromPath(r.URL.Path)
	if !ok {
		httputil.NotFound(w, "unknown chart")
		return
	}
	width, ok := sizeParam(r, "w", defaultPNGWidth)
	if !ok {
		httputil.BadRequest(w, "w must be between 16 and 2000")
		return
	}
	height, ok := sizeParam(r, "h", defaultPNGHeight)
	if !ok {
		httputil.BadRequest(w, "h must be between 16 and 2000")
		return
	}

	frame, _ := s.Hub.Latest()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderSparklinePNG(w, name, frame.Charts[name], width, height); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}

func sizeParam(r *http.Request, key string, def int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 16 || v > maxPNGSide {
		return 0, false
	}
	return v, true
}
