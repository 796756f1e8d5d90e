package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

var (
	ErrEmptyDenom     = errors.New("types: coin denom must not be empty")
	ErrDuplicateDenom = errors.New("types: duplicate coin denom")
)

// Coin is a (denomination, amount) pair attached to a call by the host.
type Coin struct {
	Denom  string
	Amount *big.Int
}

// NewCoin is a convenience constructor.
func NewCoin(denom string, amount int64) Coin {
	return Coin{Denom: denom, Amount: big.NewInt(amount)}
}

type coinJSON struct {
	Denom  string          `json:"denom"`
	Amount json.RawMessage `json:"amount"`
}

// MarshalJSON encodes the amount as a decimal string.
func (c Coin) MarshalJSON() ([]byte, error) {
	amount, err := json.Marshal(CloneAmount(c.Amount).String())
	if err != nil {
		return nil, err
	}
	return json.Marshal(coinJSON{Denom: c.Denom, Amount: amount})
}

// UnmarshalJSON accepts the amount either as a decimal string or a bare number.
func (c *Coin) UnmarshalJSON(data []byte) error {
	var raw coinJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	text := strings.Trim(strings.TrimSpace(string(raw.Amount)), `"`)
	amount, err := ParseAmount(text)
	if err != nil {
		return err
	}
	c.Denom = raw.Denom
	c.Amount = amount
	return nil
}

func (c Coin) String() string {
	return CloneAmount(c.Amount).String() + c.Denom
}

// Coins is the set of funds attached to one call.
type Coins []Coin

// Validate enforces non-empty denominations, valid amounts and unique denominations.
func (cs Coins) Validate() error {
	seen := make(map[string]struct{}, len(cs))
	for _, coin := range cs {
		denom := strings.TrimSpace(coin.Denom)
		if denom == "" {
			return ErrEmptyDenom
		}
		if err := ValidateAmount(coin.Amount); err != nil {
			return fmt.Errorf("coin %s: %w", denom, err)
		}
		if _, ok := seen[denom]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDenom, denom)
		}
		seen[denom] = struct{}{}
	}
	return nil
}

// Find returns the coin with the supplied denomination.
func (cs Coins) Find(denom string) (Coin, bool) {
	for _, coin := range cs {
		if coin.Denom == denom {
			return Coin{Denom: coin.Denom, Amount: CloneAmount(coin.Amount)}, true
		}
	}
	return Coin{}, false
}

// Without returns every coin except the ones matching denom.
func (cs Coins) Without(denom string) Coins {
	out := make(Coins, 0, len(cs))
	for _, coin := range cs {
		if coin.Denom == denom {
			continue
		}
		out = append(out, Coin{Denom: coin.Denom, Amount: CloneAmount(coin.Amount)})
	}
	return out
}

// Denoms lists the denominations in sorted order.
func (cs Coins) Denoms() []string {
	out := make([]string, 0, len(cs))
	for _, coin := range cs {
		out = append(out, coin.Denom)
	}
	sort.Strings(out)
	return out
}

func (cs Coins) String() string {
	parts := make([]string, 0, len(cs))
	for _, coin := range cs {
		parts = append(parts, coin.String())
	}
	return strings.Join(parts, ",")
}
