// Package stream publishes dashboard frames to remote viewers over a
// server-streaming gRPC method.
package stream

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

const (
	frameQueue    = 100
	clientQueue   = 10
	statsInterval = 5 * time.Second
)

// Config holds configuration for the frame stream server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// Every forwards one frame in Every render ticks; 0 or 1 forwards all.
	// Remote viewers rarely need the full display cadence.
	Every int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxClients: 5,
		Every:      2,
	}
}

// Publisher owns the gRPC server and fans frames out to connected streams.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener
	metrics  *monitoring.Metrics

	frameChan chan dashboard.Frame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	presented      atomic.Uint64
	frameCount     atomic.Uint64
	clientCount    atomic.Int32
	droppedFrames  atomic.Uint64
	lastStatsTime  time.Time
	lastFrameCount uint64
	lastStatsMu    sync.Mutex

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	charts  bool
	frameCh chan dashboard.Frame
}

// NewPublisher creates a publisher; call Start or Serve to accept clients.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan dashboard.Frame, frameQueue),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// SetMetrics reports dropped frames under the "grpc" presenter label.
func (p *Publisher) SetMetrics(m *monitoring.Metrics) { p.metrics = m }

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	monitoring.Logf("[Stream] Attempting to bind to %s...", p.config.ListenAddr)
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterDashboardServer(p.server, &server{publisher: p})
	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[Stream] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[Stream] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the gRPC server.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
	monitoring.Logf("[Stream] gRPC server stopped")
}

// Present queues a frame for broadcast. It never blocks.
func (p *Publisher) Present(frame dashboard.Frame) {
	if !p.running.Load() {
		return
	}
	if every := uint64(p.config.Every); every > 1 && p.presented.Add(1)%every != 1 {
		return
	}
	if p.clientCount.Load() == 0 {
		return
	}

	select {
	case p.frameChan <- frame:
		count := p.frameCount.Add(1)
		p.logPeriodicStats(count)
	default:
		p.drop()
	}
}

func (p *Publisher) drop() {
	dropped := p.droppedFrames.Add(1)
	if p.metrics != nil {
		p.metrics.FramesDropped.WithLabelValues("grpc").Inc()
	}
	monitoring.Debugf("[Stream] dropped frame (total dropped: %d)", dropped)
}

// logPeriodicStats logs throughput every statsInterval.
func (p *Publisher) logPeriodicStats(frameCount uint64) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed >= statsInterval {
		frames := frameCount - p.lastFrameCount
		monitoring.Logf("[Stream] Stats: fps=%.1f frames=%d dropped=%d clients=%d queue=%d/%d",
			float64(frames)/elapsed.Seconds(), frames, p.droppedFrames.Load(),
			p.clientCount.Load(), len(p.frameChan), frameQueue)
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
	}
}

// broadcastLoop distributes frames to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					// slow client
					p.drop()
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a stream, or returns nil when the server is full.
func (p *Publisher) addClient(charts bool) *clientStream {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil
	}
	client := &clientStream{
		id:      fmt.Sprintf("grpc-%d", p.nextID.Add(1)),
		charts:  charts,
		frameCh: make(chan dashboard.Frame, clientQueue),
	}
	p.clients[client.id] = client
	n := p.clientCount.Add(1)
	monitoring.Logf("[Stream] Client connected: %s (total: %d)", client.id, n)
	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		n := p.clientCount.Add(-1)
		monitoring.Logf("[Stream] Client disconnected: %s (remaining: %d)", id, n)
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		ClientCount:   p.clientCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frames"`
	ClientCount   int32  `json:"clients"`
	DroppedFrames uint64 `json:"dropped"`
	Running       bool   `json:"running"`
}

// Addr returns the listening address once serving.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
