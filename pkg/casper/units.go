package casper

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const MotesDecimals = 9

var motesPerCSPR = big.NewInt(1_000_000_000)

// ParseMotes parses a non-negative integer amount of motes.
func ParseMotes(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, errors.Errorf("amount %q must not be negative", s)
	}

	return v, nil
}

// FormatMotes renders motes as CSPR, keeping at least one fractional digit
// and dropping trailing zeros: 1000000000000 -> "1000.0", 500000000 -> "0.5".
func FormatMotes(motes *big.Int) string {
	abs := new(big.Int).Abs(motes)
	whole, frac := new(big.Int).QuoRem(abs, motesPerCSPR, new(big.Int))

	fracStr := frac.String()
	fracStr = strings.Repeat("0", MotesDecimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		fracStr = "0"
	}

	sign := ""
	if motes.Sign() < 0 {
		sign = "-"
	}

	return sign + whole.String() + "." + fracStr
}
