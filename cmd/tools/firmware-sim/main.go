// Command firmware-sim runs a simulated vehicle controller and uploads its
// readings to a dashboard relay, the same way the car does over WiFi.
//
// Usage:
//
//	go run ./cmd/tools/firmware-sim [flags]
//
// Flags:
//
//	-relay     Relay base URL (default: http://localhost:8080)
//	-period    Distance between bumps (default: 4s)
//	-width     Time spent over each bump (default: 600ms)
//	-noise     Sensor noise in cm (default: 0.05)
//	-dropout   Probability of a lost echo (default: 0.01)
//	-seed      Random seed (default: 1)
//	-quiet     Do not echo the controller console
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pothole.report/internal/ingest"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

func main() {
	relay := flag.String("relay", "http://localhost:8080", "Relay base URL")
	period := flag.Duration("period", 4*time.Second, "Distance between bumps")
	width := flag.Duration("width", 600*time.Millisecond, "Time spent over each bump")
	noise := flag.Float64("noise", 0.05, "Sensor noise (cm)")
	dropout := flag.Float64("dropout", 0.01, "Probability of a lost echo")
	seed := flag.Int64("seed", 1, "Random seed")
	quiet := flag.Bool("quiet", false, "Do not echo the controller console")
	flag.Parse()

	if *period <= 0 || *width <= 0 || *width >= *period {
		log.Fatal("Error: -width must be positive and shorter than -period")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := ingest.NewSimulator(ingest.BumpProfile(20, *period, *width), nil, *seed)
	sim.Noise = *noise
	sim.Dropout = *dropout
	if !*quiet {
		sim.OnLine = func(line string) { fmt.Println(line) }
	}

	uploader := ingest.NewHTTPUploader(*relay)
	monitoring.Logf("[Firmware] uploading to %s", uploader.URL)

	if err := sim.Run(ctx, uploader); err != nil && ctx.Err() == nil {
		log.Fatalf("Simulator stopped: %v", err)
	}
	st := sim.Stats()
	monitoring.Logf("[Firmware] done: %d uploaded, %d failed", st.Accepted, st.Failed)
}
