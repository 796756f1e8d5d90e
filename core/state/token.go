package state

import (
	"fmt"
	"math/big"

	"klubstake/native/token"
)

var (
	tokenInfoKey     = []byte("token/info")
	tokenMinterKey   = []byte("token/minter")
	tokenBalanceBase = []byte("token/balance/")
)

// TokenBalanceKey returns the slot name holding the receipt token balance of addr.
func TokenBalanceKey(addr []byte) []byte {
	buf := make([]byte, len(tokenBalanceBase)+len(addr))
	copy(buf, tokenBalanceBase)
	copy(buf[len(tokenBalanceBase):], addr)
	return buf
}

// TokenInfoGet loads the receipt token metadata.
func (m *Manager) TokenInfoGet() (*token.Info, bool, error) {
	info := new(token.Info)
	ok, err := m.KVGet(tokenInfoKey, info)
	if err != nil || !ok {
		return nil, false, err
	}
	if info.TotalSupply == nil {
		info.TotalSupply = big.NewInt(0)
	}
	return info, true, nil
}

// TokenInfoPut stores the receipt token metadata.
func (m *Manager) TokenInfoPut(info *token.Info) error {
	if info == nil {
		return fmt.Errorf("state: token info must not be nil")
	}
	return m.KVPut(tokenInfoKey, info)
}

// TokenMinterGet loads the mint authority record.
func (m *Manager) TokenMinterGet() (*token.Minter, bool, error) {
	minter := new(token.Minter)
	ok, err := m.KVGet(tokenMinterKey, minter)
	if err != nil || !ok {
		return nil, false, err
	}
	return minter, true, nil
}

// TokenMinterPut stores the mint authority record.
func (m *Manager) TokenMinterPut(minter *token.Minter) error {
	if minter == nil {
		return fmt.Errorf("state: token minter must not be nil")
	}
	stored := minter.Clone()
	if stored.Cap == nil {
		stored.Cap = big.NewInt(0)
	}
	return m.KVPut(tokenMinterKey, stored)
}

// TokenBalance returns the receipt token balance of addr, zero when unset.
func (m *Manager) TokenBalance(addr []byte) (*big.Int, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	balance := new(big.Int)
	ok, err := m.KVGet(TokenBalanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// TokenBalancePut stores the receipt token balance of addr.
func (m *Manager) TokenBalancePut(addr []byte, amount *big.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: balance must not be negative")
	}
	return m.KVPut(TokenBalanceKey(addr), amount)
}
