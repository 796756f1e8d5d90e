package core

import (
	"errors"
	"fmt"
	"math/big"

	"klubstake/core/types"
	"klubstake/crypto"
)

var (
	ErrInvalidMessage      = errors.New("core: invalid message")
	ErrNotInstantiated     = errors.New("core: contract not instantiated")
	ErrAlreadyInstantiated = errors.New("core: contract already instantiated")
)

// MessageInfo carries the host-supplied caller identity and attached funds.
type MessageInfo struct {
	Sender crypto.Address
	Funds  types.Coins
}

// InstantiateMsg configures the contract. Amounts are decimal strings.
type InstantiateMsg struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	FinancialOfficer string `json:"financial_officer,omitempty"`
	MinWithdrawal    string `json:"min_withdrawal"`
}

// ExecuteMsg is the action union. Exactly one field must be set.
type ExecuteMsg struct {
	Deposit  *DepositMsg  `json:"deposit,omitempty"`
	Transfer *TransferMsg `json:"transfer,omitempty"`
	Burn     *BurnMsg     `json:"burn,omitempty"`
	Send     *SendMsg     `json:"send,omitempty"`
}

// DepositMsg carries no fields; the deposit is the attached funds.
type DepositMsg struct{}

// TransferMsg moves receipt tokens to recipient.
type TransferMsg struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// BurnMsg destroys receipt tokens held by the caller.
type BurnMsg struct {
	Amount string `json:"amount"`
}

// SendMsg moves receipt tokens to a contract and hands it Msg.
type SendMsg struct {
	Contract string `json:"contract"`
	Amount   string `json:"amount"`
	Msg      []byte `json:"msg,omitempty"`
}

// Action names the variant carried by the message.
func (m ExecuteMsg) Action() (string, error) {
	var actions []string
	if m.Deposit != nil {
		actions = append(actions, "deposit")
	}
	if m.Transfer != nil {
		actions = append(actions, "transfer")
	}
	if m.Burn != nil {
		actions = append(actions, "burn")
	}
	if m.Send != nil {
		actions = append(actions, "send")
	}
	if len(actions) != 1 {
		return "", fmt.Errorf("%w: expected exactly one action, got %d", ErrInvalidMessage, len(actions))
	}
	return actions[0], nil
}

// QueryMsg is the read-only query union. Exactly one field must be set.
type QueryMsg struct {
	Balance      *BalanceQuery `json:"balance,omitempty"`
	TokenInfo    *struct{}     `json:"token_info,omitempty"`
	Minter       *struct{}     `json:"minter,omitempty"`
	Config       *struct{}     `json:"config,omitempty"`
	Pool         *struct{}     `json:"pool,omitempty"`
	Client       *ClientQuery  `json:"client,omitempty"`
	Clients      *ClientsQuery `json:"clients,omitempty"`
	ContractInfo *struct{}     `json:"contract_info,omitempty"`
}

// BalanceQuery asks for the receipt token balance of Address.
type BalanceQuery struct {
	Address string `json:"address"`
}

// ClientQuery asks for the registry record of Address.
type ClientQuery struct {
	Address string `json:"address"`
}

// ClientsQuery pages through the client index in first-deposit order.
type ClientsQuery struct {
	StartAfter string `json:"start_after,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Response is returned by every committed transition.
type Response struct {
	Attributes []types.Attribute `json:"attributes"`
	Events     []*types.Event    `json:"events"`
	Height     uint64            `json:"height"`
	Root       string            `json:"root"`
}

// BalanceResponse reports a receipt token balance.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// TokenInfoResponse reports the receipt token metadata.
type TokenInfoResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// MinterResponse reports the mint authority and optional cap.
type MinterResponse struct {
	Minter string  `json:"minter"`
	Cap    *string `json:"cap,omitempty"`
}

// ConfigResponse reports the deposit configuration record.
type ConfigResponse struct {
	Admin            string `json:"admin"`
	FinancialOfficer string `json:"financial_officer"`
	AcceptedDenom    string `json:"accepted_denom"`
	MinWithdrawal    string `json:"min_withdrawal"`
}

// PoolResponse reports the pool ledger totals.
type PoolResponse struct {
	TotalAmount       string `json:"total_amount"`
	TotalStaked       string `json:"total_staked"`
	TotalPendingClaim string `json:"total_pending_claim"`
}

// ClientResponse reports one registry record.
type ClientResponse struct {
	Address        string `json:"address"`
	StakedAmount   string `json:"staked_amount"`
	YieldGenerated string `json:"yield_generated"`
}

// ClientsResponse is one page of registry records.
type ClientsResponse struct {
	Clients []ClientResponse `json:"clients"`
}

// ContractInfoResponse reports the stored contract version record.
type ContractInfoResponse struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, err := types.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, field, err)
	}
	return amount, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(crypto.KlubPrefix, raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, field, err)
	}
	return addr, nil
}
