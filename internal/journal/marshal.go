package journal

import (
	"fmt"

	"github.com/roach88/relay/internal/ir"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// A nil payload is stored as null.
func marshalPayload(payload ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to an IRValue.
// Uses ir.UnmarshalIRValue which keeps integers exact via json.Number.
func unmarshalPayload(data string) (ir.IRValue, error) {
	if data == "" {
		return ir.Null, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
