package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/querysql"
)

// marshalScalar converts a scalar to canonical JSON TEXT for storage.
// Uses the same encoding as query parameters so lookups compare text.
func marshalScalar(s ir.Scalar) (string, error) {
	if s == nil {
		return "", fmt.Errorf("marshal scalar: fact field is unset")
	}
	text, err := querysql.Param(s)
	if err != nil {
		return "", fmt.Errorf("marshal scalar: %w", err)
	}
	return text, nil
}

// unmarshalScalar parses canonical JSON TEXT back into a scalar.
// Numbers are decoded with json.Number so that large integers keep their
// precision and floats (always written with a fraction) stay floats.
func unmarshalScalar(text string) (ir.Scalar, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal scalar: %w", err)
	}
	s, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal scalar: %w", err)
	}
	return s, nil
}

// marshalCause converts a cause reference to TEXT; no cause is "".
func marshalCause(r ir.Ref) string {
	return string(r)
}

func unmarshalCause(text string) (ir.Ref, error) {
	if text == "" {
		return "", nil
	}
	return ir.ParseRef(text)
}
