package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// decodeFrame parses a frame mapping vendor identifiers to raw price values.
func decodeFrame(data []byte) (map[string]json.RawMessage, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessageParse, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: frame is not an object", ErrMessageParse)
	}
	return values, nil
}

// rawPrice extracts the textual price from a raw value. ok is false for
// null, a missing value, or the strings "null" and "undefined".
func rawPrice(raw json.RawMessage) (value string, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw), true
		}
		if s == "null" || s == "undefined" {
			return "", false
		}
		return s, true
	}

	return string(raw), true
}

// parsePrice parses a finite float price.
func parsePrice(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("price %q is not finite", s)
	}
	return f, nil
}
