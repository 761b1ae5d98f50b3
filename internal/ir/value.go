package ir

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag of a Scalar.
//
// The declaration order is the cross-type sort order used by Compare:
// Null < Bool < Int < Float < String < Bytes < Record < Ref.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	// KindRecord is reserved for structured values. No Scalar reports it, but
	// it keeps its slot in the ordering between Bytes and Ref.
	KindRecord
	KindRef
)

// String returns the name reported by the data/type operator.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindRecord:
		return "record"
	case KindRef:
		return "reference"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Scalar is a sealed interface representing an atomic constant value.
// Only Null, Bool, Int, Float, String, Bytes and Ref implement it.
//
// Never compare Scalars with ==: Bytes is a slice. Use Equal or Compare.
type Scalar interface {
	Term
	Kind() Kind
	scalar() // Sealed - only these types implement it
}

// Null represents the null scalar.
type Null struct{}

// Bool represents a boolean scalar.
type Bool bool

// Int represents an integer scalar.
type Int int64

// Float represents a floating point scalar.
type Float float64

// String represents a text scalar.
type String string

// Bytes represents a binary scalar.
type Bytes []byte

// Ref is a content-hash reference: the lowercase hex SHA-256 digest produced
// by Refer. Entities are usually identified by references.
type Ref string

func (Null) scalar()   {}
func (Bool) scalar()   {}
func (Int) scalar()    {}
func (Float) scalar()  {}
func (String) scalar() {}
func (Bytes) scalar()  {}
func (Ref) scalar()    {}

func (Null) term()   {}
func (Bool) term()   {}
func (Int) term()    {}
func (Float) term()  {}
func (String) term() {}
func (Bytes) term()  {}
func (Ref) term()    {}

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Bytes) Kind() Kind  { return KindBytes }
func (Ref) Kind() Kind    { return KindRef }

func (Null) String() string     { return "null" }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (i Int) String() string    { return strconv.FormatInt(int64(i), 10) }
func (f Float) String() string  { return formatFloat(float64(f)) }
func (s String) String() string { return strconv.Quote(string(s)) }
func (b Bytes) String() string  { return "0x" + hex.EncodeToString(b) }
func (r Ref) String() string    { return "#" + string(r) }

// ParseRef validates a hex digest and returns it as a Ref.
func ParseRef(s string) (Ref, error) {
	s = strings.ToLower(s)
	if len(s) != 64 {
		return "", fmt.Errorf("reference %q: expected 64 hex characters, got %d", s, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("reference %q: %w", s, err)
	}
	return Ref(s), nil
}

// Compare orders two scalars: first by Kind, then by value within a kind.
// Returns -1, 0 or +1.
func Compare(a, b Scalar) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	switch av := a.(type) {
	case Null:
		return 0
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int:
		return cmp.Compare(av, b.(Int))
	case Float:
		return cmp.Compare(av, b.(Float))
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case Bytes:
		return bytes.Compare(av, b.(Bytes))
	case Ref:
		return strings.Compare(string(av), string(b.(Ref)))
	default:
		panic(fmt.Sprintf("ir.Compare: unknown scalar %T", a))
	}
}

// Equal reports whether two scalars are the same value of the same kind.
// Int(1) and Float(1) are not equal.
func Equal(a, b Scalar) bool {
	return Compare(a, b) == 0
}

// FromAny converts a decoded JSON/YAML value into a Scalar.
//
// Maps of the form {"/": "<hex>"} become references and {"bytes": "<base64>"}
// become bytes; any other map or slice is rejected.
func FromAny(v any) (Scalar, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Scalar:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return Float(f), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case map[string]any:
		return scalarFromMap(val)
	default:
		return nil, fmt.Errorf("unsupported scalar type: %T", v)
	}
}

// ToAny converts a Scalar to the plain Go value used for JSON/YAML output.
func ToAny(s Scalar) any {
	switch val := s.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Bytes:
		return map[string]any{"bytes": encodeBase64(val)}
	case Ref:
		return map[string]any{"/": string(val)}
	default:
		return nil
	}
}

func scalarFromMap(m map[string]any) (Scalar, error) {
	if len(m) != 1 {
		return nil, fmt.Errorf("records are not scalars: %v", m)
	}
	if raw, ok := m["/"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("reference must be a string, got %T", raw)
		}
		return ParseRef(s)
	}
	if raw, ok := m["bytes"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("bytes must be base64 text, got %T", raw)
		}
		b, err := decodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("bytes: %w", err)
		}
		return Bytes(b), nil
	}
	return nil, fmt.Errorf("records are not scalars: %v", m)
}

// formatFloat renders a float so that it never reads back as an integer.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
