// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing spreadsheet currency strings such
// as "$1,234.56" into exact decimals and formatting them back for display.
package core

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is an exact decimal amount. It serializes as a two-decimal string
// while keeping full precision internally.
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MustMoney parses a plain decimal literal and panics on failure. Intended
// for tests and constants.
func MustMoney(s string) Money {
	return Money{Decimal: decimal.RequireFromString(s)}
}

// Format renders m as a display currency string, e.g. "$1,234.56".
func (m Money) Format() string {
	return FormatCurrency(m.Decimal)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.StringFixed(2))
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Accept bare JSON numbers as well.
		d, derr := decimal.NewFromString(string(b))
		if derr != nil {
			return ErrInvalidAmount
		}
		m.Decimal = d
		return nil
	}
	d, err := ParseCurrency(s)
	if err != nil {
		return err
	}
	m.Decimal = d
	return nil
}

// ParseCurrency converts a spreadsheet currency string to an exact decimal.
//
// It accepts an optional dollar sign, comma thousands separators, and a
// negative sign either before or after the dollar sign. Accounting style
// parentheses also mark a negative value.
//
// Examples:
//   ParseCurrency("$1,234.56")  -> 1234.56
//   ParseCurrency("-$20.00")    -> -20
//   ParseCurrency("($5.10)")    -> -5.1
//   ParseCurrency("42")         -> 42
func ParseCurrency(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	dots := 0
	for _, r := range s {
		if r == '.' {
			dots++
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// FormatCurrency rounds d to cents and renders it with a dollar sign and
// thousands separators. Negative values are prefixed with "-$".
func FormatCurrency(d decimal.Decimal) string {
	r := d.Round(2)
	neg := r.IsNegative()
	fixed := r.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("$")
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
