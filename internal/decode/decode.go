// Package decode turns loosely shaped backend responses into typed values.
//
// The backend wraps payloads inconsistently ({"data": ...}, {"exam": ...}, bare
// arrays, ...). Instead of sniffing shapes at every call site, callers describe
// the accepted shapes as an ordered list of Extractors and let First pick the
// first one that matches.
package decode

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Extractor tries to read a T out of a raw JSON document.
type Extractor[T any] struct {
	Name    string
	Extract func(raw json.RawMessage) (T, bool)
}

// First runs extractors in order and returns the first match with its name.
func First[T any](raw json.RawMessage, extractors []Extractor[T]) (T, string, bool) {
	for _, ex := range extractors {
		if v, ok := ex.Extract(raw); ok {
			return v, ex.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Object parses raw as a JSON object. It returns nil for anything else.
func Object(raw json.RawMessage) map[string]json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// Member returns the first non-null member of raw named by keys.
func Member(raw json.RawMessage, keys ...string) (json.RawMessage, bool) {
	obj := Object(raw)
	if obj == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok && !IsNull(v) {
			return v, true
		}
	}
	return nil, false
}

// Descend follows each key in turn while the current document has it.
// A missing key leaves the document where it is, so Descend(b, "data", "exam")
// accepts {"data":{"exam":X}}, {"data":X}, {"exam":X} and X alike.
func Descend(raw json.RawMessage, keys ...string) json.RawMessage {
	cur := raw
	for _, k := range keys {
		next, ok := Member(cur, k)
		if ok && (Object(next) != nil || IsArray(next)) {
			cur = next
		}
	}
	return cur
}

// Array returns the elements of the first array found at raw itself or under
// one of keys, tried in order.
func Array(raw json.RawMessage, keys ...string) ([]json.RawMessage, bool) {
	if IsArray(raw) {
		var out []json.RawMessage
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, true
		}
	}
	obj := Object(raw)
	if obj == nil {
		return nil, false
	}
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || !IsArray(v) {
			continue
		}
		var out []json.RawMessage
		if err := json.Unmarshal(v, &out); err == nil {
			return out, true
		}
	}
	return nil, false
}

// IsNull reports whether raw is empty or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// IsArray reports whether raw is a JSON array.
func IsArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// String reads raw as a JSON string.
func String(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// StringField returns the first non-empty string member named by keys.
func StringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := String(v); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Number reads raw as a finite number. Numeric strings are accepted.
func Number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if raw[0] == '"' {
		s, ok := String(raw)
		if !ok {
			return 0, false
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = n
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NumberField returns the first numeric member named by keys.
func NumberField(raw json.RawMessage, keys ...string) (float64, bool) {
	obj := Object(raw)
	if obj == nil {
		return 0, false
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if n, ok := Number(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// MaxInt bounds every integer read from a backend number. Seconds, minutes and
// points all fit comfortably; larger values are server bugs.
const MaxInt = math.MaxInt32

// Int truncates f toward zero and clamps it to [0, MaxInt].
func Int(f float64) int {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= MaxInt:
		return MaxInt
	}
	return int(f)
}

// timeLayouts are tried in order. The zoneless form is read in local time,
// as a browser's Date parser does.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time parses an ISO 8601 timestamp with or without a zone offset.
func Time(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for i, layout := range timeLayouts {
		loc := time.UTC
		if i > 0 {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
