// Package money represents payment amounts as fixed-point integers so
// client-side math never drifts from the ledger's own integer arithmetic.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimals is the scale used by the supported stablecoins.
const Decimals = 6

// unit is 10^Decimals.
const unit = 1_000_000

// Amount is a token amount in micro-units (6 decimals).
type Amount int64

var (
	// ErrNegativeAmount signals an amount below zero where only
	// non-negative values are meaningful.
	ErrNegativeAmount = errors.New("money: amount must not be negative")
	// ErrMalformedAmount signals an unparseable decimal string.
	ErrMalformedAmount = errors.New("money: malformed amount")
)

// FromUnits builds an Amount from whole tokens and a fractional micro part.
func FromUnits(whole int64, micro int64) Amount {
	return Amount(whole*unit + micro)
}

// Parse converts a decimal string such as "1000" or "12.5" into an Amount.
// At most six fractional digits are accepted; extra precision is rejected
// rather than silently truncated.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMalformedAmount
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	wholePart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		wholePart, fracPart = s[:i], s[i+1:]
	}
	if wholePart == "" && fracPart == "" {
		return 0, ErrMalformedAmount
	}
	if wholePart == "" {
		wholePart = "0"
	}
	if len(fracPart) > Decimals {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrMalformedAmount, Decimals)
	}

	// Both parts must be bare digit runs. ParseInt would let a stray sign
	// through ("1.-2", "--2") and fold it into the value.
	whole, err := strconv.ParseUint(wholePart, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}

	var frac uint64
	if fracPart != "" {
		frac, err = strconv.ParseUint(fracPart, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
		for i := len(fracPart); i < Decimals; i++ {
			frac *= 10
		}
	}

	if whole > math.MaxInt64/unit {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedAmount, s)
	}
	total := whole*unit + frac
	if total > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedAmount, s)
	}

	a := Amount(total)
	if neg {
		a = -a
	}
	return a, nil
}

// String renders the amount as a decimal token value with trailing zeros
// trimmed, e.g. 1500000 -> "1.5".
func (a Amount) String() string {
	neg := a < 0
	if neg {
		a = -a
	}
	whole := int64(a) / unit
	frac := int64(a) % unit

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatInt(whole, 10))
	if frac != 0 {
		f := strconv.FormatInt(frac, 10)
		for len(f) < Decimals {
			f = "0" + f
		}
		f = strings.TrimRight(f, "0")
		b.WriteByte('.')
		b.WriteString(f)
	}
	return b.String()
}

// Micros exposes the raw micro-unit value for ledger calls and SQL params.
func (a Amount) Micros() int64 { return int64(a) }

// Min returns the smaller of two amounts.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Clamp restricts a to [low, high]. Callers pass nil for an unknown bound,
// which leaves that side unbounded.
func Clamp(a Amount, low, high *Amount) Amount {
	if low != nil && a < *low {
		a = *low
	}
	if high != nil && a > *high {
		a = *high
	}
	return a
}
