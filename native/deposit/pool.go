package deposit

import (
	"math/big"

	"klubstake/core/types"
)

// PoolLedger stores the aggregate totals. RecordDeposit is the only mutator
// used by deposits.
type PoolLedger struct {
	st kvState
}

// NewPoolLedger creates a pool ledger backed by the provided state.
func NewPoolLedger(st kvState) *PoolLedger {
	return &PoolLedger{st: st}
}

// Get returns the current totals.
func (p *PoolLedger) Get() (*Pool, error) {
	if p == nil || p.st == nil {
		return nil, ErrNilState
	}
	pool := new(Pool)
	ok, err := p.st.KVGet(poolKey, pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	return pool.Clone(), nil
}

func (p *PoolLedger) reset() error {
	return p.st.KVPut(poolKey, NewPool())
}

func (p *PoolLedger) plan(quantity *big.Int) (*Pool, error) {
	pool, err := p.Get()
	if err != nil {
		return nil, err
	}
	total, err := types.AddAmounts(pool.TotalAmount, quantity)
	if err != nil {
		return nil, err
	}
	staked, err := types.AddAmounts(pool.TotalStaked, quantity)
	if err != nil {
		return nil, err
	}
	pool.TotalAmount = total
	pool.TotalStaked = staked
	return pool, nil
}

// RecordDeposit adds quantity to both the total and staked amounts.
func (p *PoolLedger) RecordDeposit(quantity *big.Int) (*Pool, error) {
	pool, err := p.plan(quantity)
	if err != nil {
		return nil, err
	}
	if err := p.st.KVPut(poolKey, pool); err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}
