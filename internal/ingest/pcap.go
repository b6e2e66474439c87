package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// ReplayOptions controls a capture replay.
type ReplayOptions struct {
	// Port selects UDP datagrams sent to this destination port. 0 accepts all.
	Port int
	// Realtime sleeps between packets to reproduce the capture timing.
	Realtime bool
	// Speed scales realtime playback; 2 plays twice as fast. 0 means 1.
	Speed float64
	Clock timeutil.Clock
}

// ReplayStats summarises a replay.
type ReplayStats struct {
	Packets  int   `json:"packets"`
	Matched  int   `json:"matched"`
	Readings Stats `json:"readings"`
}

// ReplayPCAPFile opens a .pcap or .pcapng file and replays it.
func ReplayPCAPFile(ctx context.Context, path string, opts ReplayOptions, ing Ingester) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()
	return ReplayPCAP(ctx, f, opts, ing)
}

// packetReader is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	// pcapng section header block type
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng: %w", err)
		}
		return ng, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap: %w", err)
	}
	return pr, nil
}

// ReplayPCAP feeds the UDP payloads of a capture to ing, in capture order.
func ReplayPCAP(ctx context.Context, r io.Reader, opts ReplayOptions, ing Ingester) (ReplayStats, error) {
	var stats ReplayStats
	src, err := openCapture(r)
	if err != nil {
		return stats, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}

	var c counters
	packets := gopacket.NewPacketSource(src, src.LinkType())
	packets.NoCopy = true
	var first time.Time
	start := clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			stats.Readings = c.snapshot()
			return stats, err
		}
		pkt, err := packets.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			monitoring.Debugf("[PCAP] skipping undecodable packet: %v", err)
			continue
		}
		stats.Packets++

		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		stats.Matched++

		if opts.Realtime {
			ts := pkt.Metadata().Timestamp
			if first.IsZero() {
				first = ts
			}
			due := time.Duration(float64(ts.Sub(first)) / speed)
			if wait := due - clock.Since(start); wait > 0 {
				select {
				case <-ctx.Done():
					stats.Readings = c.snapshot()
					return stats, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		handlePayload(ing, &c, "PCAP", udp.Payload)
	}

	stats.Readings = c.snapshot()
	monitoring.Logf("[PCAP] replay complete: %d packets, %d matched, %d readings accepted",
		stats.Packets, stats.Matched, stats.Readings.Accepted)
	return stats, nil
}
