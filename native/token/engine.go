package token

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"klubstake/core/events"
	"klubstake/core/types"
	"klubstake/crypto"
)

const (
	minNameLen   = 3
	maxNameLen   = 50
	minSymbolLen = 3
	maxSymbolLen = 12
	maxDecimals  = 18
)

type engineState interface {
	TokenInfoGet() (*Info, bool, error)
	TokenInfoPut(info *Info) error
	TokenMinterGet() (*Minter, bool, error)
	TokenMinterPut(minter *Minter) error
	TokenBalance(addr []byte) (*big.Int, error)
	TokenBalancePut(addr []byte, amount *big.Int) error
}

// Engine implements the receipt token ledger: a generic fungible token with
// a single mint authority.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	receiver Receiver
}

// NewEngine constructs a token engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetReceiver configures the hook that Send dispatches to. Without a
// receiver, Send behaves like a transfer that records the payload.
func (e *Engine) SetReceiver(receiver Receiver) { e.receiver = receiver }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func validateParams(params InitParams) error {
	name := strings.TrimSpace(params.Name)
	if len(name) < minNameLen || len(name) > maxNameLen {
		return ErrInvalidName
	}
	symbol := strings.TrimSpace(params.Symbol)
	if len(symbol) < minSymbolLen || len(symbol) > maxSymbolLen {
		return ErrInvalidSymbol
	}
	for _, r := range symbol {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-') {
			return ErrInvalidSymbol
		}
	}
	if params.Decimals > maxDecimals {
		return ErrInvalidDecimals
	}
	if len(params.Minter) != crypto.AddressLength {
		return fmt.Errorf("token: minter must be a %d-byte identity", crypto.AddressLength)
	}
	if params.Cap != nil {
		if err := types.ValidateAmount(params.Cap); err != nil {
			return fmt.Errorf("token: cap: %w", err)
		}
	}
	return nil
}

// Initialize stores the token metadata with zero supply and configures the
// mint authority.
func (e *Engine) Initialize(params InitParams) (*Info, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.TokenInfoGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	info := &Info{
		Name:        strings.TrimSpace(params.Name),
		Symbol:      strings.TrimSpace(params.Symbol),
		Decimals:    params.Decimals,
		TotalSupply: big.NewInt(0),
	}
	minter := &Minter{Minter: append([]byte(nil), params.Minter...)}
	if params.Cap != nil {
		minter.HasCap = true
		minter.Cap = new(big.Int).Set(params.Cap)
	}
	if err := e.state.TokenInfoPut(info); err != nil {
		return nil, err
	}
	if err := e.state.TokenMinterPut(minter); err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

func (e *Engine) loadInfo() (*Info, error) {
	info, ok, err := e.state.TokenInfoGet()
	if err != nil {
		return nil, err
	}
	if !ok || info == nil {
		return nil, ErrNotInitialized
	}
	if info.TotalSupply == nil {
		info.TotalSupply = big.NewInt(0)
	}
	return info, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return ErrInvalidZeroAmount
	}
	return types.ValidateAmount(amount)
}

func checkRecipient(addr []byte) error {
	if len(addr) != crypto.AddressLength {
		return ErrInvalidRecipient
	}
	return nil
}

// Mint increases supply and credits recipient. Only the configured minter may
// mint and the optional cap is enforced.
func (e *Engine) Mint(authority, recipient []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := checkRecipient(recipient); err != nil {
		return err
	}
	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	minter, ok, err := e.state.TokenMinterGet()
	if err != nil {
		return err
	}
	if !ok || minter == nil || !bytes.Equal(minter.Minter, authority) {
		return ErrUnauthorized
	}
	supply, err := types.AddAmounts(info.TotalSupply, amount)
	if err != nil {
		return err
	}
	if limit := minter.CapValue(); limit != nil && supply.Cmp(limit) > 0 {
		return ErrCannotExceedCap
	}
	balance, err := e.state.TokenBalance(recipient)
	if err != nil {
		return err
	}
	balance, err = types.AddAmounts(balance, amount)
	if err != nil {
		return err
	}
	info.TotalSupply = supply
	if err := e.state.TokenInfoPut(info); err != nil {
		return err
	}
	if err := e.state.TokenBalancePut(recipient, balance); err != nil {
		return err
	}
	e.emit(MintEvent(authority, recipient, amount.String()))
	return nil
}

func (e *Engine) move(from, to []byte, amount *big.Int) error {
	if _, err := e.loadInfo(); err != nil {
		return err
	}
	fromBalance, err := e.state.TokenBalance(from)
	if err != nil {
		return err
	}
	if fromBalance == nil || fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromBalance, err = types.SubAmounts(fromBalance, amount)
	if err != nil {
		return err
	}
	if err := e.state.TokenBalancePut(from, fromBalance); err != nil {
		return err
	}
	toBalance, err := e.state.TokenBalance(to)
	if err != nil {
		return err
	}
	toBalance, err = types.AddAmounts(toBalance, amount)
	if err != nil {
		return err
	}
	return e.state.TokenBalancePut(to, toBalance)
}

// Transfer moves amount from sender to recipient.
func (e *Engine) Transfer(sender, recipient []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := checkRecipient(recipient); err != nil {
		return err
	}
	if err := e.move(sender, recipient, amount); err != nil {
		return err
	}
	e.emit(TransferEvent(sender, recipient, amount.String()))
	return nil
}

// Burn destroys amount from the sender balance and reduces supply.
func (e *Engine) Burn(sender []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	balance, err := e.state.TokenBalance(sender)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance, err = types.SubAmounts(balance, amount)
	if err != nil {
		return err
	}
	supply, err := types.SubAmounts(info.TotalSupply, amount)
	if err != nil {
		return err
	}
	info.TotalSupply = supply
	if err := e.state.TokenBalancePut(sender, balance); err != nil {
		return err
	}
	if err := e.state.TokenInfoPut(info); err != nil {
		return err
	}
	e.emit(BurnEvent(sender, amount.String()))
	return nil
}

// Send transfers amount to contract and dispatches payload to the receiver
// hook. A receiver error aborts the send; the caller's transaction boundary
// rolls back the transfer.
func (e *Engine) Send(sender, contract []byte, amount *big.Int, payload []byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := checkRecipient(contract); err != nil {
		return err
	}
	if err := e.move(sender, contract, amount); err != nil {
		return err
	}
	if e.receiver != nil {
		msg := ReceiveMsg{
			Sender: append([]byte(nil), sender...),
			Amount: new(big.Int).Set(amount),
			Msg:    append([]byte(nil), payload...),
		}
		if err := e.receiver.Receive(append([]byte(nil), contract...), msg); err != nil {
			return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
		}
	}
	e.emit(SendEvent(sender, contract, amount.String(), payload))
	return nil
}

// Balance returns the receipt token balance of addr.
func (e *Engine) Balance(addr []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	balance, err := e.state.TokenBalance(addr)
	if err != nil {
		return nil, err
	}
	return newBigInt(balance), nil
}

// TokenInfo returns the token metadata and current supply.
func (e *Engine) TokenInfo() (*Info, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	info, err := e.loadInfo()
	if err != nil {
		return nil, err
	}
	return info.Clone(), nil
}

// Minter returns the mint authority record.
func (e *Engine) Minter() (*Minter, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	minter, ok, err := e.state.TokenMinterGet()
	if err != nil {
		return nil, err
	}
	if !ok || minter == nil {
		return nil, ErrNotInitialized
	}
	return minter.Clone(), nil
}
