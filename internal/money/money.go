// Package money provides shared Naira parsing and formatting utilities.
//
// Amounts are stored as decimal strings in the human currency unit
// (e.g. "10000.00") and converted to kobo (1 NGN = 100 kobo) only at
// the payment-gateway boundary.
package money

import (
	"strconv"
	"strings"
)

const Decimals = 2

// NGN is the only currency the platform charges in.
const NGN = "NGN"

// Parse converts a decimal string (e.g. "1500.50") to kobo (150050).
// Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}

	if strings.HasPrefix(s, "-") {
		return 0, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	kobo, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return kobo, true
}

// Format converts a kobo amount to a human-readable decimal string with
// exactly 2 decimal places (e.g. "1500.50").
func Format(kobo int64) string {
	neg := kobo < 0
	if neg {
		kobo = -kobo
	}
	s := strconv.FormatInt(kobo, 10)
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Valid reports whether s is a parseable non-negative amount.
func Valid(s string) bool {
	_, ok := Parse(s)
	return ok
}
