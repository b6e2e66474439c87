// Command frame-tail connects to a dashboard's gRPC frame stream and prints
// one summary line per frame.
//
// Usage:
//
//	go run ./cmd/tools/frame-tail -addr localhost:50061 [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/present/stream"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "Dashboard gRPC address")
	asJSON := flag.Bool("json", false, "Print whole frames as JSON")
	charts := flag.Bool("charts", false, "Request chart series")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := stream.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	enc := json.NewEncoder(os.Stdout)
	err = client.StreamFrames(ctx, *charts || *asJSON, func(f dashboard.Frame) error {
		if *asJSON {
			return enc.Encode(f)
		}
		fmt.Printf("#%d %-10s speed=%-8s dist=%-8s shock=%-6s score=%-4s sev=%s potholes=%d\n",
			f.Seq, f.Status.State, f.Speed.Text, f.Distance.Text, f.Shock.Text,
			f.RoadScore.Text, f.Severity.Label, f.Stats.PotholeCount)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Stream ended: %v", err)
	}
}
