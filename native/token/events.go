package token

import (
	"encoding/base64"

	"klubstake/core/types"
	"klubstake/crypto"
)

const (
	// EventTypeMint is emitted when receipt tokens are minted.
	EventTypeMint = "token.mint"
	// EventTypeTransfer is emitted on a plain transfer.
	EventTypeTransfer = "token.transfer"
	// EventTypeBurn is emitted when a holder burns tokens.
	EventTypeBurn = "token.burn"
	// EventTypeSend is emitted when tokens are sent to a contract with a payload.
	EventTypeSend = "token.send"
)

func addrString(addr []byte) string {
	if len(addr) != crypto.AddressLength {
		return ""
	}
	return crypto.MustNewAddress(crypto.KlubPrefix, addr).String()
}

// MintEvent returns the structured event payload for a mint.
func MintEvent(minter, recipient []byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeMint,
		Attributes: map[string]string{
			"action": "mint",
			"minter": addrString(minter),
			"to":     addrString(recipient),
			"amount": amount,
		},
	}
}

// TransferEvent returns the structured event payload for a transfer.
func TransferEvent(from, to []byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"action": "transfer",
			"from":   addrString(from),
			"to":     addrString(to),
			"amount": amount,
		},
	}
}

// BurnEvent returns the structured event payload for a burn.
func BurnEvent(from []byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeBurn,
		Attributes: map[string]string{
			"action": "burn",
			"from":   addrString(from),
			"amount": amount,
		},
	}
}

// SendEvent returns the structured event payload for a send.
func SendEvent(from, contract []byte, amount string, payload []byte) *types.Event {
	return &types.Event{
		Type: EventTypeSend,
		Attributes: map[string]string{
			"action": "send",
			"from":   addrString(from),
			"to":     addrString(contract),
			"amount": amount,
			"msg":    base64.StdEncoding.EncodeToString(payload),
		},
	}
}
