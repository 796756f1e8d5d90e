package deposit

import (
	"math/big"
	"strings"

	"klubstake/core/types"
)

// Config is the configuration record written once at setup.
type Config struct {
	Admin            []byte
	FinancialOfficer []byte
	AcceptedDenom    string
	MinWithdrawal    *big.Int
}

// Clone returns a deep copy of the configuration record.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	return &Config{
		Admin:            append([]byte(nil), c.Admin...),
		FinancialOfficer: append([]byte(nil), c.FinancialOfficer...),
		AcceptedDenom:    c.AcceptedDenom,
		MinWithdrawal:    types.CloneAmount(c.MinWithdrawal),
	}
}

// Pool is the aggregate mirror of the client registry. TotalPendingClaim is
// reserved for the withdrawal flow and is never touched by deposits.
type Pool struct {
	TotalAmount       *big.Int
	TotalStaked       *big.Int
	TotalPendingClaim *big.Int
}

// NewPool returns a zeroed pool ledger.
func NewPool() *Pool {
	return &Pool{TotalAmount: big.NewInt(0), TotalStaked: big.NewInt(0), TotalPendingClaim: big.NewInt(0)}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return NewPool()
	}
	return &Pool{
		TotalAmount:       types.CloneAmount(p.TotalAmount),
		TotalStaked:       types.CloneAmount(p.TotalStaked),
		TotalPendingClaim: types.CloneAmount(p.TotalPendingClaim),
	}
}

// Client is the per-depositor record.
type Client struct {
	StakedAmount   *big.Int
	YieldGenerated *big.Int
}

// Clone returns a deep copy of the client record.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	return &Client{
		StakedAmount:   types.CloneAmount(c.StakedAmount),
		YieldGenerated: types.CloneAmount(c.YieldGenerated),
	}
}

// ClientEntry pairs a depositor identity with its record for enumeration.
type ClientEntry struct {
	Address []byte
	Client  *Client
}

// SetupParams configures the deposit engine at instantiation.
type SetupParams struct {
	Creator []byte
	// FinancialOfficer defaults to Creator when empty.
	FinancialOfficer []byte
	AcceptedDenom    string
	MinWithdrawal    *big.Int
}

// Receipt describes a processed deposit.
type Receipt struct {
	Depositor []byte
	Quantity  *big.Int
	NewClient bool
	// Ignored lists attached coins that were not the accepted denomination.
	Ignored types.Coins
}

// ExtraFundsPolicy controls what happens to coins attached alongside the
// accepted denomination.
type ExtraFundsPolicy string

const (
	ExtraFundsIgnore ExtraFundsPolicy = "ignore"
	ExtraFundsReject ExtraFundsPolicy = "reject"
)

// ParseExtraFundsPolicy normalises a policy name. Empty selects ignore.
func ParseExtraFundsPolicy(raw string) (ExtraFundsPolicy, error) {
	switch ExtraFundsPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExtraFundsIgnore:
		return ExtraFundsIgnore, nil
	case ExtraFundsReject:
		return ExtraFundsReject, nil
	default:
		return "", ErrInvalidPolicy
	}
}

// Policy holds the deposit acceptance rules that are not part of the stored
// configuration record.
type Policy struct {
	ExtraFunds       ExtraFundsPolicy
	AllowZeroDeposit bool
}

// DefaultPolicy ignores extra funds and rejects zero deposits.
func DefaultPolicy() Policy {
	return Policy{ExtraFunds: ExtraFundsIgnore}
}
