// Package uintblob stores fixed-width unsigned integers as BLOB
// columns whose byte-wise ordering matches numeric ordering.
//
// SQLite's native INTEGER type is signed and capped at 64 bits, so a
// uint64 identifier (or anything wider) cannot be stored losslessly
// in an INTEGER column. Declaring the column as BLOB and writing the
// value through one of these wrappers sidesteps both problems: the
// value is encoded as a fixed-length, big-endian byte array, and
// because SQLite compares BLOBs with memcmp, larger numbers always
// sort after smaller ones. Range queries and ORDER BY behave exactly
// as they would over integers.
//
// On read, decoding fails with a *SizeError if the stored BLOB's
// length does not exactly match the type's byte width. There is no
// truncation or zero-padding recovery: a length mismatch means the
// column is being read under the wrong declared width, and silently
// "fixing" it would corrupt data. For the same reason two encodings
// of different widths are never interchangeable, even when the
// numeric value is equal: 42 as a U8 is one byte, 42 as a U32 is
// four, and a lookup with one will not match a row stored with the
// other.
//
// The wrappers implement driver.Valuer and sql.Scanner, so they plug
// directly into database/sql: declare the column as BLOB and use the
// wrapper type as the scan destination or query argument. The codec
// then runs implicitly at the storage boundary.
package uintblob

import (
	"database/sql/driver"
	"fmt"
)

// Uint is the closed set of primitive widths the codec supports
// below 128 bits. It is deliberately not extensible: each member has
// a fixed, known byte width, and the width is part of the wire
// contract.
type Uint interface {
	uint8 | uint16 | uint32 | uint64
}

// SizeError reports a decode attempt whose input length did not
// match the declared width. It is never retried and never degrades
// to a default value; the caller always sees it.
type SizeError struct {
	Expected int    // byte width of the declared type
	Actual   int    // length of the input
	TypeName string // e.g. "uint32"
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("invalid input size: expected %d bytes for %s, got %d", e.Expected, e.TypeName, e.Actual)
}

// width returns the encoded byte length and type name for T.
func width[T Uint]() (int, string) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 1, "uint8"
	case uint16:
		return 2, "uint16"
	case uint32:
		return 4, "uint32"
	default:
		return 8, "uint64"
	}
}

// Blob wraps an unsigned integer for storage as a fixed-size
// big-endian byte array. The zero value encodes the number zero.
type Blob[T Uint] struct {
	value T
}

// Exported aliases for the supported widths. U128 is a separate type
// because Go has no native 128-bit integer; see u128.go.
type (
	U8  = Blob[uint8]
	U16 = Blob[uint16]
	U32 = Blob[uint32]
	U64 = Blob[uint64]
)

// New wraps v for storage.
func New[T Uint](v T) Blob[T] {
	return Blob[T]{value: v}
}

// Get returns the wrapped value.
func (b Blob[T]) Get() T {
	return b.value
}

// Bytes returns the big-endian encoding. The length is exactly the
// byte width of T.
func (b Blob[T]) Bytes() []byte {
	n, _ := width[T]()
	buf := make([]byte, n)
	v := uint64(b.value)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// FromBytes decodes a big-endian byte slice into a Blob. The input
// length must equal the byte width of T; anything else fails with a
// *SizeError.
func FromBytes[T Uint](p []byte) (Blob[T], error) {
	n, name := width[T]()
	if len(p) != n {
		return Blob[T]{}, &SizeError{Expected: n, Actual: len(p), TypeName: name}
	}
	var v uint64
	for _, c := range p {
		v = v<<8 | uint64(c)
	}
	return Blob[T]{value: T(v)}, nil
}

// Value implements driver.Valuer.
func (b Blob[T]) Value() (driver.Value, error) {
	return b.Bytes(), nil
}

// Scan implements sql.Scanner. It accepts only []byte of exactly the
// declared width.
func (b *Blob[T]) Scan(src any) error {
	_, name := width[T]()
	p, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("uintblob: cannot scan %T into %s blob", src, name)
	}
	decoded, err := FromBytes[T](p)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

func (b Blob[T]) String() string {
	return fmt.Sprintf("%d", b.value)
}
