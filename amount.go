package main

import (
	"fmt"
	"math/big"
	"strings"
)

// toBaseUnit converts a decimal amount such as "0.5" into integer base units
// with the given number of decimals. The conversion is exact.
func toBaseUnit(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals %d", decimals)
	}

	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" {
		whole = "0"
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	return v, nil
}

// fromBaseUnit formats base units as a decimal string.
func fromBaseUnit(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}

	s := new(big.Int).Abs(v).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}

		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}

	if v.Sign() < 0 {
		s = "-" + s
	}

	return s
}
