package token

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ToBaseUnits parses a human-readable decimal amount into integer base
// units scaled by 10^decimals. Fractional digits beyond the token's
// precision are a caller error, not silently rounded.
func ToBaseUnits(human string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(human)
	if clean == "" {
		return nil, kiterr.New(kiterr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return nil, kiterr.New(kiterr.CodeUsage, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(clean) {
		return nil, kiterr.New(kiterr.CodeUsage, fmt.Sprintf("amount %q must be a non-negative decimal like 1.23", human))
	}

	parts := strings.SplitN(clean, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, kiterr.New(kiterr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined = strings.TrimLeft(combined, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, kiterr.New(kiterr.CodeUsage, "invalid decimal amount")
	}
	return value, nil
}

// ToHumanUnits formats integer base units as a decimal string with trailing
// zeros trimmed.
func ToHumanUnits(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	s := new(big.Int).Set(base).String()
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
