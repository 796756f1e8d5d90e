package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAmounts(t *testing.T) {
	sum, err := AddAmounts(big.NewInt(100), big.NewInt(50))
	require.NoError(t, err)
	require.Equal(t, "150", sum.String())

	sum, err = AddAmounts(nil, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "5", sum.String())

	_, err = AddAmounts(MaxAmount(), big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountOverflow)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 200)
	_, err = AddAmounts(tooBig, big.NewInt(0))
	require.ErrorIs(t, err, ErrAmountOverflow)

	_, err = AddAmounts(big.NewInt(-1), big.NewInt(0))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestSubAmounts(t *testing.T) {
	diff, err := SubAmounts(big.NewInt(100), big.NewInt(40))
	require.NoError(t, err)
	require.Equal(t, "60", diff.String())

	_, err = SubAmounts(big.NewInt(1), big.NewInt(2))
	require.ErrorIs(t, err, ErrAmountUnderflow)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 340282366920938463463374607431768211455 ")
	require.NoError(t, err)
	require.Equal(t, 0, v.Cmp(MaxAmount()))

	_, err = ParseAmount("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrAmountOverflow)

	_, err = ParseAmount("12abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
}
