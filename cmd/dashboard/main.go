// Command dashboard runs the live road-quality dashboard: it ingests
// controller telemetry from any combination of sources, keeps the rolling
// dashboard state and serves it to browsers, gRPC viewers and the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rivo/tview"

	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/feed"
	"github.com/banshee-data/pothole.report/internal/ingest"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/present/stream"
	"github.com/banshee-data/pothole.report/internal/present/tui"
	"github.com/banshee-data/pothole.report/internal/present/web"
	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
	"github.com/banshee-data/pothole.report/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a dashboard JSON config (defaults apply when empty)")
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	grpcAddr     = flag.String("grpc", "", "gRPC frame stream listen address, e.g. localhost:50061 (disabled when empty)")
	serialPort   = flag.String("serial", "", "Controller serial port, e.g. /dev/ttyUSB0 (disabled when empty)")
	listPorts    = flag.Bool("list-ports", false, "List serial ports and exit")
	udpEnabled   = flag.Bool("udp", false, "Listen for controller datagrams on the configured UDP port")
	pcapFile     = flag.String("pcap", "", "Replay controller datagrams from a .pcap/.pcapng file")
	pcapRealtime = flag.Bool("pcap-realtime", true, "Replay the capture at its recorded pace")
	wsURL        = flag.String("ws", "", "Follow an upstream websocket sending controller lines or JSON readings as text messages, e.g. ws://car.local:81/ (this dashboard's /ws streams frames, not readings)")
	demoMode     = flag.Bool("demo", false, "Start the relay in demo mode")
	simulate     = flag.Bool("sim", false, "Drive the feed from a simulated vehicle controller")
	simSeed      = flag.Int64("sim-seed", 1, "Random seed for the simulated controller")
	tuiMode      = flag.Bool("tui", false, "Draw the dashboard in this terminal")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// sources are the optional ingest paths chosen on the command line.
type sources struct {
	serial serialmux.SerialMuxInterface
	udp    ingest.UDPSocket
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	monitoring.SetDebug(*debug)
	if *tuiMode {
		// the terminal belongs to the dashboard
		log.SetOutput(io.Discard)
		monitoring.SetLogger(nil)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var src sources
	if *serialPort != "" {
		opts := serialmux.DefaultPortOptions()
		opts.BaudRate = cfg.GetSerialBaudRate()
		m, err := serialmux.NewRealSerialMux(*serialPort, opts)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		src.serial = m
		defer m.Close()
	}
	if *udpEnabled {
		sock, err := ingest.ListenUDP(cfg.GetUDPPort())
		if err != nil {
			log.Fatalf("failed to open UDP listener: %v", err)
		}
		src.udp = sock
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, src); err != nil {
		log.Fatalf("dashboard failed: %v", err)
	}
	log.Print("dashboard stopped")
}

func loadConfig(path string) (*config.DashboardConfig, error) {
	if path == "" {
		return config.DefaultDashboardConfig(), nil
	}
	return config.LoadDashboardConfig(path)
}

// run wires the pipeline and blocks until ctx is done. stop cancels ctx; the
// terminal view calls it when the user quits.
func run(ctx context.Context, stop context.CancelFunc, cfg *config.DashboardConfig, src sources) error {
	clock := timeutil.RealClock{}
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	f := feed.New(cfg.GetFeedLimit(), clock)
	f.SetMetrics(metrics)
	defer f.Close()

	relay := feed.NewRelay(f, clock)
	if *demoMode {
		if err := relay.SetMode(feed.ModeDemo); err != nil {
			return err
		}
	}

	proc := dashboard.NewProcessor(dashboard.ConfigFrom(cfg), metrics)
	binding := dashboard.Bind(f, proc, cfg.GetFeedLimit(), clock)
	defer binding.Close()

	var wsSrc *ingest.WSSource
	if *wsURL != "" {
		wsSrc = ingest.NewWSSource(*wsURL, relay)
		wsSrc.OnFatal = f.Fail
	}
	resume := func() {
		binding.Resume()
		if wsSrc != nil {
			wsSrc.Resume()
		}
	}
	relay.OnResume(resume)

	vars := map[string]func() interface{}{
		"feed":  func() interface{} { return f.Stats() },
		"relay": func() interface{} { return map[string]interface{}{"mode": relay.Mode(), "potholes": relay.PotholeCount()} },
	}

	hub := web.NewHub(2)
	hub.SetMetrics(metrics)
	presenters := []dashboard.Presenter{hub}

	var publisher *stream.Publisher
	if *grpcAddr != "" {
		scfg := stream.DefaultConfig()
		scfg.ListenAddr = *grpcAddr
		publisher = stream.NewPublisher(scfg)
		publisher.SetMetrics(metrics)
		if err := publisher.Start(); err != nil {
			return fmt.Errorf("failed to start gRPC stream: %w", err)
		}
		defer publisher.Stop()
		presenters = append(presenters, publisher)
		vars["grpc"] = func() interface{} { return publisher.Stats() }
	}

	var view *tui.View
	if *tuiMode {
		view = tui.NewView(tview.NewApplication())
		view.SetMetrics(metrics)
		view.OnResume(resume)
		presenters = append(presenters, view)
	}

	var wg sync.WaitGroup
	goFunc := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s: %v", name, err)
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	goFunc("render", func() error {
		dashboard.RunRenderLoop(ctx, clock, cfg.GetRenderInterval(), proc, presenters...)
		return nil
	})
	goFunc("demo", func() error {
		relay.RunDemo(ctx, feed.DemoInterval)
		return nil
	})

	if src.serial != nil {
		serialSrc := ingest.NewSerialSource(src.serial, relay)
		vars["serial"] = func() interface{} { return serialSrc.Stats() }
		goFunc("serial monitor", func() error { return src.serial.Monitor(ctx) })
		goFunc("serial ingest", func() error { return serialSrc.Run(ctx) })
	}
	if src.udp != nil {
		udpSrc := ingest.NewUDPSource(src.udp, relay)
		vars["udp"] = func() interface{} { return udpSrc.Stats() }
		goFunc("udp", func() error { return udpSrc.Run(ctx) })
	}
	if *pcapFile != "" {
		goFunc("pcap", func() error {
			_, err := ingest.ReplayPCAPFile(ctx, *pcapFile, ingest.ReplayOptions{
				Port:     cfg.GetUDPPort(),
				Realtime: *pcapRealtime,
			}, relay)
			return err
		})
	}
	if wsSrc != nil {
		vars["ws"] = func() interface{} { return wsSrc.Stats() }
		goFunc("ws", func() error { return wsSrc.Run(ctx) })
	}
	if *simulate {
		sim := ingest.NewSimulator(ingest.DefaultProfile, clock, *simSeed)
		sim.Noise = 0.05
		sim.Dropout = 0.01
		sim.OnLine = func(line string) { monitoring.Debugf("[Firmware] %s", line) }
		vars["sim"] = func() interface{} { return sim.Stats() }
		goFunc("sim", func() error { return sim.Run(ctx, relay) })
	}

	mux := http.NewServeMux()
	relay.RegisterRoutes(mux)
	if src.serial != nil {
		src.serial.AttachAdminRoutes(mux)
	}
	(&web.Server{Hub: hub, Status: proc, Vars: vars}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              *listen,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	goFunc("http", func() error {
		errc := make(chan error, 1)
		go func() {
			log.Printf("serving dashboard on %s", *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		select {
		case err := <-errc:
			stop()
			return fmt.Errorf("failed to start server: %w", err)
		case <-ctx.Done():
		}
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if view != nil {
		// the terminal view owns the main goroutine until the user quits
		if err := view.Run(ctx); err != nil {
			log.Printf("terminal view: %v", err)
		}
		stop()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		monitoring.Debugf("got request %s %q", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
