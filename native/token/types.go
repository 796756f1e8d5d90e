package token

import "math/big"

// Info is the receipt token metadata and running supply.
type Info struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply"`
}

// Clone returns a deep copy of the token info.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	clone := *i
	clone.TotalSupply = newBigInt(i.TotalSupply)
	return &clone
}

// Minter records the identity allowed to mint and the optional supply cap.
// HasCap distinguishes "no cap" from a cap of zero once RLP-encoded.
type Minter struct {
	Minter []byte   `json:"minter"`
	HasCap bool     `json:"has_cap"`
	Cap    *big.Int `json:"cap,omitempty"`
}

// Clone returns a deep copy of the minter record.
func (m *Minter) Clone() *Minter {
	if m == nil {
		return nil
	}
	clone := &Minter{Minter: append([]byte(nil), m.Minter...), HasCap: m.HasCap}
	if m.HasCap {
		clone.Cap = newBigInt(m.Cap)
	}
	return clone
}

// CapValue returns the supply cap or nil when minting is unbounded.
func (m *Minter) CapValue() *big.Int {
	if m == nil || !m.HasCap {
		return nil
	}
	return newBigInt(m.Cap)
}

// InitParams configures a fresh receipt token.
type InitParams struct {
	Name     string
	Symbol   string
	Decimals uint8
	Minter   []byte
	// Cap is optional; nil means unbounded supply.
	Cap *big.Int
}

// ReceiveMsg is delivered to the receiving contract of a Send.
type ReceiveMsg struct {
	Sender []byte
	Amount *big.Int
	Msg    []byte
}

// Receiver handles the hook invoked by Send. A returned error aborts the send.
type Receiver interface {
	Receive(contract []byte, msg ReceiveMsg) error
}

// ReceiverFunc adapts a function into a Receiver.
type ReceiverFunc func(contract []byte, msg ReceiveMsg) error

// Receive implements Receiver.
func (f ReceiverFunc) Receive(contract []byte, msg ReceiveMsg) error { return f(contract, msg) }

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
