// Package telemetry turns the raw scale transport stream into a
// trustworthy weight reading with a stability verdict. The decoder is a
// pure function over one transport payload; the classifier owns the
// sliding window and the verdict; the ingestor is the single consumer
// that feeds decoded samples into the classifier in arrival order.
package telemetry

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// ErrNoNumericValue is returned when no signed decimal number can be
// found anywhere in the payload. Decode failures are not fatal; the
// sample is simply dropped for that tick.
var ErrNoNumericValue = errors.New("no numeric value in payload")

// numericPattern matches the first signed decimal number in a string.
var numericPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Reading is one successfully decoded weight sample.
type Reading struct {
	Value      float64
	ReceivedAt time.Time
}

// Decode extracts a weight reading from one transport payload.
//
// Payload handling, in order: a string is tried as base64 first and the
// decoded text scanned for a signed decimal; if base64 decoding fails or
// yields no number, the original string is scanned instead. A numeric
// payload is used directly. Anything else is stringified and scanned.
// The result is rounded to 2 decimals.
func Decode(payload any, receivedAt time.Time) (Reading, error) {
	var value float64
	var ok bool

	switch p := payload.(type) {
	case string:
		value, ok = decodeString(p)
	case float64:
		value, ok = p, true
	case float32:
		value, ok = float64(p), true
	case int:
		value, ok = float64(p), true
	case int64:
		value, ok = float64(p), true
	case []byte:
		value, ok = decodeString(string(p))
	default:
		value, ok = extractNumber(fmt.Sprintf("%v", p))
	}

	if !ok {
		return Reading{}, ErrNoNumericValue
	}

	return Reading{Value: round2(value), ReceivedAt: receivedAt}, nil
}

// decodeString tries base64 first, then falls back to scanning the raw
// text. Scales in the field ship both framings.
func decodeString(s string) (float64, bool) {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		if v, ok := extractNumber(string(decoded)); ok {
			return v, true
		}
	}
	return extractNumber(s)
}

// extractNumber returns the first signed decimal number in s.
func extractNumber(s string) (float64, bool) {
	match := numericPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
