package deposit

import (
	"strings"

	"klubstake/core/types"
	"klubstake/crypto"
)

const (
	// EventTypeConfigured is emitted once when the engine is set up.
	EventTypeConfigured = "deposit.configured"
	// EventTypeDepositReceived is emitted for every accepted deposit.
	EventTypeDepositReceived = "deposit.received"

	actionDeposit = "Deposit"
)

func addrString(addr []byte) string {
	if len(addr) != crypto.AddressLength {
		return ""
	}
	return crypto.MustNewAddress(crypto.KlubPrefix, addr).String()
}

// ConfiguredEvent describes the stored configuration record.
func ConfiguredEvent(cfg *Config) *types.Event {
	return &types.Event{
		Type: EventTypeConfigured,
		Attributes: map[string]string{
			"admin":             addrString(cfg.Admin),
			"financial_officer": addrString(cfg.FinancialOfficer),
			"accepted_denom":    cfg.AcceptedDenom,
			"min_withdrawal":    types.CloneAmount(cfg.MinWithdrawal).String(),
		},
	}
}

// DepositReceivedEvent mirrors the response attributes of a deposit.
func DepositReceivedEvent(receipt *Receipt) *types.Event {
	attrs := map[string]string{
		"action":          actionDeposit,
		"quantity_minted": types.CloneAmount(receipt.Quantity).String(),
		"address_to_mint": addrString(receipt.Depositor),
	}
	if receipt.NewClient {
		attrs["new_client"] = "true"
	}
	if len(receipt.Ignored) > 0 {
		attrs["ignored_funds"] = receipt.Ignored.String()
	}
	return &types.Event{Type: EventTypeDepositReceived, Attributes: attrs}
}

// Attributes renders the receipt as ordered response attributes.
func (r *Receipt) Attributes() []types.Attribute {
	out := []types.Attribute{
		types.NewAttribute("action", actionDeposit),
		types.NewAttribute("quantity_minted", types.CloneAmount(r.Quantity).String()),
		types.NewAttribute("address_to_mint", addrString(r.Depositor)),
	}
	if len(r.Ignored) > 0 {
		out = append(out, types.NewAttribute("ignored_funds", strings.Join(r.Ignored.Denoms(), ",")))
	}
	return out
}
