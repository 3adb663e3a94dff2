package numeric

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt is an arbitrary-precision integer column. It maps to NUMERIC in
// Postgres and to TEXT in SQLite, and round-trips through its decimal string
// form so no driver-side width limit applies.
type BigInt struct {
	value big.Int
}

// NewBigInt returns a BigInt holding v.
func NewBigInt(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.value.Set(v)
	}
	return b
}

// FromUint64 returns a BigInt holding v.
func FromUint64(v uint64) BigInt {
	var b BigInt
	b.value.SetUint64(v)
	return b
}

// Int returns a copy of the underlying value.
func (b *BigInt) Int() *big.Int {
	return new(big.Int).Set(&b.value)
}

// Set replaces the underlying value.
func (b *BigInt) Set(v *big.Int) {
	b.value.Set(v)
}

// Add adds v in place.
func (b *BigInt) Add(v *big.Int) {
	b.value.Add(&b.value, v)
}

// Sub subtracts v in place.
func (b *BigInt) Sub(v *big.Int) {
	b.value.Sub(&b.value, v)
}

// Cmp compares the underlying value against v.
func (b *BigInt) Cmp(v *big.Int) int {
	return b.value.Cmp(v)
}

// Sign reports the sign of the underlying value.
func (b *BigInt) Sign() int {
	return b.value.Sign()
}

func (b BigInt) String() string {
	return b.value.String()
}

// Value implements driver.Valuer.
func (b BigInt) Value() (driver.Value, error) {
	return b.value.String(), nil
}

// Scan implements sql.Scanner.
func (b *BigInt) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		b.value.SetInt64(0)
		return nil
	case int64:
		b.value.SetInt64(v)
		return nil
	case []byte:
		return b.setString(string(v))
	case string:
		return b.setString(v)
	default:
		return fmt.Errorf("cannot scan %T into BigInt", src)
	}
}

func (b *BigInt) setString(s string) error {
	if s == "" {
		b.value.SetInt64(0)
		return nil
	}
	if _, ok := b.value.SetString(s, 10); !ok {
		return fmt.Errorf("invalid numeric literal %q", s)
	}
	return nil
}

// GormDataType tells GORM which column type to use.
func (BigInt) GormDataType() string {
	return "numeric"
}

// MarshalJSON encodes the value as a JSON string to avoid precision loss in
// consumers that parse numbers as float64.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.value.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal forms.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return b.setString(s)
}

// MulUint64 returns x*y exactly, without any intermediate truncation.
func MulUint64(x, y uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(x), new(big.Int).SetUint64(y))
}

// ScalePow10 returns v * 10^exp. Used to convert whole asset units into an
// asset's smallest-unit precision.
func ScalePow10(v *big.Int, exp int) *big.Int {
	if exp <= 0 {
		return new(big.Int).Set(v)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return new(big.Int).Mul(v, scale)
}
