// Package types provides the numeric primitives of the ledger: fixed-point quantities
// and arbitrary-precision money.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value (unit cost, line value) with full precision.
// Accumulation always happens on Money; rounding happens only at presentation.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewMoneyFromInt creates a whole-unit Money value.
func NewMoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
// Stored as BIGINT (scaled integer) so sums over long histories never drift.
type Quantity int64

const (
	QuantityScale  int64 = 10_000
	quantityDigits       = 4
)

// NewQuantity creates a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// ParseQuantity parses a decimal string ("12", "-3.5", "0.0001").
func ParseQuantity(s string) (Quantity, error) {
	return parseQuantityString(s)
}

// MustQuantity parses a quantity and panics on error. Use only for constants and tests.
func MustQuantity(s string) Quantity {
	q, err := parseQuantityString(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

// Decimal converts the quantity to an exact decimal for monetary arithmetic.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -quantityDigits)
}

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Min returns the smaller of two quantities.
func Min(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two quantities.
func Max(a, b Quantity) Quantity {
	if a > b {
		return a
	}
	return b
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := int64(q)
	if neg {
		v = -v
	}
	intPart := v / QuantityScale
	frac := v % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	parsed, err := parseQuantityString(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantityString(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	if strings.ContainsAny(s, "eE") {
		return 0, fmt.Errorf("parse quantity %q: exponent form not supported", s)
	}

	sign := int64(1)
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "+")
	}

	intPartStr, fracStr, _ := strings.Cut(s, ".")
	if intPartStr == "" {
		intPartStr = "0"
	}
	intPart, err := strconv.ParseInt(intPartStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity integer part: %w", err)
	}

	// Extra precision is rejected rather than truncated: a silently dropped
	// fraction would break conservation across transfers.
	if len(fracStr) > quantityDigits {
		if strings.TrimRight(fracStr[quantityDigits:], "0") != "" {
			return 0, fmt.Errorf("parse quantity %q: more than %d fractional digits", s, quantityDigits)
		}
		fracStr = fracStr[:quantityDigits]
	}
	for len(fracStr) < quantityDigits {
		fracStr += "0"
	}
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity fractional part: %w", err)
	}

	return Quantity(sign * (intPart*QuantityScale + frac)), nil
}

// MinorUnits represents a monetary value in minor currency units (cents).
// Produced only at the presentation boundary.
type MinorUnits int64

// ToMinorUnits rounds m half-away-from-zero to the smallest currency unit.
func ToMinorUnits(m Money, decimalPlaces int32) MinorUnits {
	return MinorUnits(m.Round(decimalPlaces).Shift(decimalPlaces).IntPart())
}

// RoundForDisplay rounds m to the currency's decimal places.
func RoundForDisplay(m Money, decimalPlaces int32) Money {
	return m.Round(decimalPlaces)
}

func (m MinorUnits) IsZero() bool { return m == 0 }
func (m MinorUnits) Abs() MinorUnits {
	if m < 0 {
		return -m
	}
	return m
}
