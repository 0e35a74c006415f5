package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses an unsigned decimal amount that fits in 256 bits.
func ParseAmount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidInput, value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidInput, value)
	}
	out, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("%w: amount %q", ErrOverflow, value)
	}
	return out, nil
}

// FormatAmount renders an amount in base 10. Nil formats as zero.
func FormatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

// mulDiv returns floor(a*b/c) with a full-width intermediate product.
func mulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidInput)
	}
	num := new(big.Int).Mul(a.ToBig(), b.ToBig())
	num.Quo(num, c.ToBig())
	out, overflow := uint256.FromBig(num)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: subtraction underflow", ErrInvalidInput)
	}
	return out, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}
