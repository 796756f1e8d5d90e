package state

import (
	"errors"
	"fmt"
)

var contractInfoKey = []byte("contract/info")

// ErrContractInfoMissing is returned when the contract version record has
// never been written.
var ErrContractInfoMissing = errors.New("state: contract info missing")

// ContractInfo names the contract living in this state and its version.
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// SetContractInfo records the contract name and version.
func (m *Manager) SetContractInfo(info ContractInfo) error {
	if info.Contract == "" || info.Version == "" {
		return fmt.Errorf("state: contract name and version must not be empty")
	}
	return m.KVPut(contractInfoKey, &info)
}

// ContractInfo returns the stored contract version record.
func (m *Manager) ContractInfo() (*ContractInfo, error) {
	info := new(ContractInfo)
	ok, err := m.KVGet(contractInfoKey, info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrContractInfoMissing
	}
	return info, nil
}

// HasContractInfo reports whether the state has been instantiated.
func (m *Manager) HasContractInfo() (bool, error) {
	return m.KVGet(contractInfoKey, nil)
}
