package uintblob

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// u128Size is the encoded byte length of a U128.
const u128Size = 16

// U128 is an unsigned 128-bit integer stored as a 16-byte big-endian
// blob. Go has no native 128-bit integer type, so the value is held
// as a high/low pair of uint64s.
type U128 struct {
	hi, lo uint64
}

// MaxU128 is the largest representable U128.
var MaxU128 = U128{hi: ^uint64(0), lo: ^uint64(0)}

// NewU128 builds a U128 from its high and low 64-bit halves.
func NewU128(hi, lo uint64) U128 {
	return U128{hi: hi, lo: lo}
}

// Hi returns the most significant 64 bits.
func (u U128) Hi() uint64 { return u.hi }

// Lo returns the least significant 64 bits.
func (u U128) Lo() uint64 { return u.lo }

// Bytes returns the 16-byte big-endian encoding.
func (u U128) Bytes() []byte {
	buf := make([]byte, u128Size)
	hi, lo := u.hi, u.lo
	for i := 7; i >= 0; i-- {
		buf[i] = byte(hi)
		buf[i+8] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	return buf
}

// U128FromBytes decodes a 16-byte big-endian slice. Any other length
// fails with a *SizeError.
func U128FromBytes(p []byte) (U128, error) {
	if len(p) != u128Size {
		return U128{}, &SizeError{Expected: u128Size, Actual: len(p), TypeName: "uint128"}
	}
	var u U128
	for i := 0; i < 8; i++ {
		u.hi = u.hi<<8 | uint64(p[i])
		u.lo = u.lo<<8 | uint64(p[i+8])
	}
	return u, nil
}

// Cmp compares u and v numerically, returning -1, 0 or +1.
func (u U128) Cmp(v U128) int {
	switch {
	case u.hi < v.hi:
		return -1
	case u.hi > v.hi:
		return 1
	case u.lo < v.lo:
		return -1
	case u.lo > v.lo:
		return 1
	default:
		return 0
	}
}

// Value implements driver.Valuer.
func (u U128) Value() (driver.Value, error) {
	return u.Bytes(), nil
}

// Scan implements sql.Scanner.
func (u *U128) Scan(src any) error {
	p, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("uintblob: cannot scan %T into uint128 blob", src)
	}
	decoded, err := U128FromBytes(p)
	if err != nil {
		return err
	}
	*u = decoded
	return nil
}

// String returns the decimal representation.
func (u U128) String() string {
	return new(big.Int).SetBytes(u.Bytes()).String()
}
