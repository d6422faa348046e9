package wire

import (
	"encoding/json"
	"fmt"
)

// Typed-value prefixes used on the SUBSCRIPTION_HAS_PROVIDER flag field (and
// available to any other single-field typed value the wire protocol needs).
const (
	typedTrue      = 'T'
	typedFalse     = 'F'
	typedNumber    = 'N'
	typedString    = 'S'
	typedObject    = 'O'
	typedUndefined = 'U'
)

// EncodeTyped renders v with its one-character type prefix.
func EncodeTyped(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return string(typedUndefined), nil
	case bool:
		if val {
			return string(typedTrue), nil
		}
		return string(typedFalse), nil
	case float64:
		return string(typedNumber) + jsonNumber(val), nil
	case int:
		return string(typedNumber) + jsonNumber(float64(val)), nil
	case string:
		return string(typedString) + val, nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("wire: encode typed value: %w", err)
		}
		return string(typedObject) + string(encoded), nil
	}
}

// DecodeTyped parses a single typed-value field back into a Go value.
func DecodeTyped(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("wire: empty typed value")
	}

	prefix, rest := s[0], s[1:]
	switch prefix {
	case typedTrue:
		return true, nil
	case typedFalse:
		return false, nil
	case typedUndefined:
		return nil, nil
	case typedString:
		return rest, nil
	case typedNumber:
		var n float64
		if err := json.Unmarshal([]byte(rest), &n); err != nil {
			return nil, fmt.Errorf("wire: decode typed number %q: %w", rest, err)
		}
		return n, nil
	case typedObject:
		var v any
		if err := json.Unmarshal([]byte(rest), &v); err != nil {
			return nil, fmt.Errorf("wire: decode typed object %q: %w", rest, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("wire: unknown typed value prefix %q", prefix)
	}
}

func jsonNumber(f float64) string {
	encoded, err := json.Marshal(f)
	if err != nil {
		// float64 always marshals cleanly except NaN/Inf, which never
		// appear in provider-flag payloads.
		return "0"
	}
	return string(encoded)
}
