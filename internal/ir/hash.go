package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRef         = "deduce/ref/v1"
	DomainTransaction = "deduce/transaction/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Refer computes the content reference of v. v may be a Scalar, a
// map[string]any record or a []any list; anything MarshalCanonical accepts.
func Refer(v any) (Ref, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("refer: %w", err)
	}
	return Ref(hashWithDomain(DomainRef, canonical)), nil
}

// MustRefer is like Refer but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRefer(v any) Ref {
	ref, err := Refer(v)
	if err != nil {
		panic(err)
	}
	return ref
}

// TransactionRef derives the cause reference recorded for facts written in
// one transaction.
func TransactionRef(txID string) Ref {
	return Ref(hashWithDomain(DomainTransaction, []byte(txID)))
}

// AppendBinary appends an unambiguous binary encoding of s to dst: a kind tag
// byte followed by a length-prefixed or fixed-width payload. Two scalars
// encode identically iff they are Equal.
func AppendBinary(dst []byte, s Scalar) []byte {
	if s == nil {
		return append(dst, 0xff)
	}
	dst = append(dst, byte(s.Kind()))
	switch val := s.(type) {
	case Null:
	case Bool:
		if val {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case Int:
		dst = binary.BigEndian.AppendUint64(dst, uint64(val))
	case Float:
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(canonicalFloat(float64(val))))
	case String:
		dst = binary.AppendUvarint(dst, uint64(len(val)))
		dst = append(dst, val...)
	case Bytes:
		dst = binary.AppendUvarint(dst, uint64(len(val)))
		dst = append(dst, val...)
	case Ref:
		dst = binary.AppendUvarint(dst, uint64(len(val)))
		dst = append(dst, val...)
	}
	return dst
}

// canonicalFloat folds -0 into +0 and every NaN into one payload, matching
// Equal.
func canonicalFloat(f float64) float64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return math.NaN()
	}
	return f
}

// Identity returns a hash of the frame's bindings that does not depend on
// insertion order. Equal frames have equal identities; FrameSet resolves
// collisions with Frame.Equal.
func (f Frame) Identity() uint64 {
	d := xxhash.New()
	var buf []byte
	for _, id := range f.Vars() {
		buf = binary.BigEndian.AppendUint64(buf[:0], uint64(id))
		buf = AppendBinary(buf, f.bindings[id])
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

// ScalarsIdentity hashes a list of scalars in order. Used to deduplicate
// aggregate values by content.
func ScalarsIdentity(values []Scalar) uint64 {
	d := xxhash.New()
	var buf []byte
	for _, v := range values {
		buf = AppendBinary(buf[:0], v)
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}
