package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotTelemetry is returned for payloads that are not a telemetry object at
// all (empty, null, arrays, free text). Callers skip these.
var ErrNotTelemetry = errors.New("payload is not a telemetry object")

// Defaults supplies the values used for fields that are missing or unusable.
type Defaults struct {
	NowMs        int64  // used when timestamp is missing
	PotholeCount uint64 // last known count
}

// FieldIssue records one field that was replaced by its default.
type FieldIssue struct {
	Field  string
	Reason string
	Raw    interface{}
}

// ParseReport lists the fields a parse had to default. A nil or empty report
// means the payload was clean.
type ParseReport struct {
	Issues []FieldIssue
}

// Empty reports whether nothing was defaulted.
func (r *ParseReport) Empty() bool {
	return r == nil || len(r.Issues) == 0
}

// Fields returns the names of the defaulted fields.
func (r *ParseReport) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.Field)
	}
	return out
}

func (r *ParseReport) add(field, reason string, raw interface{}) {
	r.Issues = append(r.Issues, FieldIssue{Field: field, Reason: reason, Raw: raw})
}

// ParseSample decodes a JSON feed payload into a Sample. Malformed fields are
// defaulted and listed in the report; only a payload that is not a JSON object
// yields an error.
func ParseSample(payload []byte, d Defaults) (Sample, *ParseReport, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Sample{}, nil, ErrNotTelemetry
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Sample{}, nil, fmt.Errorf("%w: %v", ErrNotTelemetry, err)
	}
	s, report := SampleFromFields(fields, d)
	return s, report, nil
}

// SampleFromFields builds a Sample from an already-decoded object.
func SampleFromFields(fields map[string]interface{}, d Defaults) (Sample, *ParseReport) {
	report := &ParseReport{}
	s := Sample{
		Distance:  numberField(fields, "distance", 0, report),
		Speed:     numberField(fields, "speed", 0, report),
		RoadScore: numberField(fields, "roadScore", 0, report),
	}

	sev := numberField(fields, "severity", 0, report)
	s.Severity = int(sev)
	if s.Severity < SeverityCalibrating || s.Severity > SeverityDeep {
		report.add("severity", "out of range", fields["severity"])
		s.Severity = clampInt(s.Severity, SeverityCalibrating, SeverityDeep)
	}

	ts := numberField(fields, "timestamp", float64(d.NowMs), report)
	s.Timestamp = int64(ts)

	s.PotholeCount = d.PotholeCount
	for _, key := range []string{"potholes", "potholeCount"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, ok := coerce(raw)
		if !ok || v < 0 {
			report.add(key, "invalid", raw)
			break
		}
		s.PotholeCount = uint64(v)
		break
	}

	if raw, ok := fields["potholeEvent"]; ok {
		s.PotholeEvent = truthy(raw)
	}

	// presence of the key alone selects the explicit value, as upstream does
	if raw, ok := fields["acceleration"]; ok {
		v, valid := coerce(raw)
		if !valid {
			report.add("acceleration", "invalid", raw)
			v = 0
		}
		s.Acceleration = &v
	}
	if raw, ok := fields["shock"]; ok {
		v, valid := coerce(raw)
		if !valid {
			report.add("shock", "invalid", raw)
			v = 0
		}
		s.Shock = &v
	}

	return s, report
}

// ParseLine parses one controller line. JSON objects and the firmware's
// CSV form "distance,speed,severity,roadScore" are accepted; anything else
// (status chatter, partial lines) is ErrNotTelemetry.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return Reading{}, fmt.Errorf("%w: %v", ErrNotTelemetry, err)
		}
		return ReadingFromFields(fields), nil
	}

	segments := strings.Split(line, ",")
	if len(segments) != 4 {
		return Reading{}, ErrNotTelemetry
	}
	var vals [4]float64
	for i, seg := range segments {
		v, err := strconv.ParseFloat(strings.TrimSpace(seg), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, fmt.Errorf("%w: segment %d %q", ErrNotTelemetry, i, seg)
		}
		vals[i] = v
	}
	return Reading{
		Distance:  vals[0],
		Speed:     vals[1],
		Severity:  clampInt(int(vals[2]), SeverityCalibrating, SeverityDeep),
		RoadScore: vals[3],
	}, nil
}

// ReadingFromFields leniently converts a decoded object, defaulting bad
// fields to zero.
func ReadingFromFields(fields map[string]interface{}) Reading {
	var report ParseReport
	return Reading{
		Distance:  numberField(fields, "distance", 0, &report),
		Speed:     numberField(fields, "speed", 0, &report),
		Severity:  clampInt(int(numberField(fields, "severity", 0, &report)), SeverityCalibrating, SeverityDeep),
		RoadScore: numberField(fields, "roadScore", 0, &report),
	}
}

func numberField(fields map[string]interface{}, key string, def float64, report *ParseReport) float64 {
	raw, ok := fields[key]
	if !ok || raw == nil {
		report.add(key, "missing", raw)
		return def
	}
	v, ok := coerce(raw)
	if !ok {
		report.add(key, "not numeric", raw)
		return def
	}
	return v
}

// coerce converts a decoded JSON value to a finite float. Booleans map to 0/1
// and blank strings to 0.
func coerce(raw interface{}) (float64, bool) {
	var v float64
	switch x := raw.(type) {
	case nil:
		return 0, true
	case float64:
		v = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case bool:
		if x {
			v = 1
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func truthy(raw interface{}) bool {
	switch x := raw.(type) {
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "no":
			return false
		}
		return true
	default:
		return false
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
