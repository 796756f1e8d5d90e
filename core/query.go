package core

import (
	"context"
	"fmt"
	"strings"

	"klubstake/core/types"
	"klubstake/crypto"
	"klubstake/native/deposit"
)

// Query answers a read-only question against committed state.
func (a *App) Query(ctx context.Context, msg QueryMsg) (interface{}, error) {
	variants := 0
	for _, set := range []bool{
		msg.Balance != nil, msg.TokenInfo != nil, msg.Minter != nil, msg.Config != nil,
		msg.Pool != nil, msg.Client != nil, msg.Clients != nil, msg.ContractInfo != nil,
	} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return nil, fmt.Errorf("%w: expected exactly one query, got %d", ErrInvalidMessage, variants)
	}

	_, span := a.tracer.Start(ctx, "ledger.query")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case msg.ContractInfo != nil:
		info, err := a.state.ContractInfo()
		if err != nil {
			return nil, ErrNotInstantiated
		}
		return &ContractInfoResponse{Contract: info.Contract, Version: info.Version}, nil
	case msg.Balance != nil:
		addr, err := parseAddress("address", msg.Balance.Address)
		if err != nil {
			return nil, err
		}
		balance, err := a.token.Balance(addr.Bytes())
		if err != nil {
			return nil, err
		}
		return &BalanceResponse{Balance: balance.String()}, nil
	}

	if err := a.requireInstantiated(); err != nil {
		return nil, err
	}
	switch {
	case msg.TokenInfo != nil:
		info, err := a.token.TokenInfo()
		if err != nil {
			return nil, err
		}
		return &TokenInfoResponse{
			Name:        info.Name,
			Symbol:      info.Symbol,
			Decimals:    info.Decimals,
			TotalSupply: types.CloneAmount(info.TotalSupply).String(),
		}, nil
	case msg.Minter != nil:
		minter, err := a.token.Minter()
		if err != nil {
			return nil, err
		}
		resp := &MinterResponse{Minter: bech(minter.Minter)}
		if limit := minter.CapValue(); limit != nil {
			value := limit.String()
			resp.Cap = &value
		}
		return resp, nil
	case msg.Config != nil:
		cfg, err := a.deposit.Config()
		if err != nil {
			return nil, err
		}
		return &ConfigResponse{
			Admin:            bech(cfg.Admin),
			FinancialOfficer: bech(cfg.FinancialOfficer),
			AcceptedDenom:    cfg.AcceptedDenom,
			MinWithdrawal:    types.CloneAmount(cfg.MinWithdrawal).String(),
		}, nil
	case msg.Pool != nil:
		pool, err := a.deposit.Pool().Get()
		if err != nil {
			return nil, err
		}
		return &PoolResponse{
			TotalAmount:       pool.TotalAmount.String(),
			TotalStaked:       pool.TotalStaked.String(),
			TotalPendingClaim: pool.TotalPendingClaim.String(),
		}, nil
	case msg.Client != nil:
		addr, err := parseAddress("address", msg.Client.Address)
		if err != nil {
			return nil, err
		}
		record, ok, err := a.deposit.Registry().Get(addr.Bytes())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, deposit.ErrClientNotFound
		}
		resp := clientResponse(addr.Bytes(), record)
		return &resp, nil
	default:
		var startAfter []byte
		if strings.TrimSpace(msg.Clients.StartAfter) != "" {
			addr, err := parseAddress("start_after", msg.Clients.StartAfter)
			if err != nil {
				return nil, err
			}
			startAfter = addr.Bytes()
		}
		limit := msg.Clients.Limit
		if limit <= 0 {
			limit = defaultClientsLimit
		}
		if limit > maxClientsLimit {
			limit = maxClientsLimit
		}
		entries, err := a.deposit.Registry().List(startAfter, limit)
		if err != nil {
			return nil, err
		}
		resp := &ClientsResponse{Clients: make([]ClientResponse, 0, len(entries))}
		for _, entry := range entries {
			resp.Clients = append(resp.Clients, clientResponse(entry.Address, entry.Client))
		}
		return resp, nil
	}
}

// AllClients returns every registry record in index order. It is used for
// exports and is not subject to the query page limit.
func (a *App) AllClients(ctx context.Context) ([]ClientResponse, error) {
	_, span := a.tracer.Start(ctx, "ledger.all_clients")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInstantiated(); err != nil {
		return nil, err
	}
	entries, err := a.deposit.Registry().List(nil, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ClientResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, clientResponse(entry.Address, entry.Client))
	}
	return out, nil
}

func clientResponse(addr []byte, record *deposit.Client) ClientResponse {
	return ClientResponse{
		Address:        bech(addr),
		StakedAmount:   types.CloneAmount(record.StakedAmount).String(),
		YieldGenerated: types.CloneAmount(record.YieldGenerated).String(),
	}
}

func bech(addr []byte) string {
	if len(addr) != crypto.AddressLength {
		return ""
	}
	return crypto.MustNewAddress(crypto.KlubPrefix, addr).String()
}
