package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrAmountOverflow  = errors.New("types: amount exceeds 128 bits")
	ErrAmountUnderflow = errors.New("types: amount underflow")
	ErrNegativeAmount  = errors.New("types: amount must not be negative")
	ErrInvalidAmount   = errors.New("types: invalid amount")
)

// maxAmount is the largest quantity any ledger slot may hold (2^128 - 1).
var maxAmount = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// MaxAmount returns the ledger ceiling as a big integer.
func MaxAmount() *big.Int {
	return maxAmount.ToBig()
}

func toUint(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow || out.Gt(maxAmount) {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// ValidateAmount checks that v is a non-negative quantity within the ledger ceiling.
func ValidateAmount(v *big.Int) error {
	_, err := toUint(v)
	return err
}

// AddAmounts returns a+b, failing when the result leaves the 128-bit range.
// Nil operands are treated as zero.
func AddAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := toUint(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow || sum.Gt(maxAmount) {
		return nil, ErrAmountOverflow
	}
	return sum.ToBig(), nil
}

// SubAmounts returns a-b, failing when b exceeds a.
func SubAmounts(a, b *big.Int) (*big.Int, error) {
	x, err := toUint(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrAmountUnderflow
	}
	return diff.ToBig(), nil
}

// ParseAmount decodes a base-10 quantity.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(value); err != nil {
		return nil, err
	}
	return value, nil
}

// CloneAmount returns a copy of v, mapping nil to zero.
func CloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
