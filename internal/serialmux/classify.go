package serialmux

import "strings"

// Line kinds printed by the vehicle controller.
const (
	LineTelemetry = "telemetry"   // CSV or JSON sample
	LineStatus    = "status"      // "Severity changed to: ..." and similar
	LineUpload    = "upload"      // HTTP result chatter from the uploader
	LineUnknown   = "unknown"
)

// ClassifyLine sorts a console line into one of the Line* kinds without
// parsing it fully.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineUnknown
	case strings.HasPrefix(line, "{"):
		return LineTelemetry
	case strings.HasPrefix(line, "Severity changed"), strings.HasPrefix(line, "Connect"),
		strings.HasPrefix(line, "ESP32 IP"), strings.HasPrefix(line, "WiFi"):
		return LineStatus
	case strings.Contains(line, "HTTP Code"), strings.Contains(line, " URL: "):
		return LineUpload
	case strings.Count(line, ",") == 3:
		return LineTelemetry
	default:
		return LineUnknown
	}
}
