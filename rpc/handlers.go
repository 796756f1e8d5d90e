package rpc

import (
	"errors"
	"net/http"

	"klubstake/core"
	"klubstake/core/types"
	"klubstake/crypto"
	"klubstake/journal"
	"klubstake/native/deposit"
	"klubstake/native/token"
)

func methodTable() map[string]method {
	return map[string]method{
		"klub_instantiate":  {write: true, handler: (*Server).handleInstantiate},
		"klub_deposit":      {write: true, handler: (*Server).handleDeposit},
		"klub_transfer":     {write: true, handler: (*Server).handleTransfer},
		"klub_burn":         {write: true, handler: (*Server).handleBurn},
		"klub_send":         {write: true, handler: (*Server).handleSend},
		"klub_balance":      {handler: (*Server).handleBalance},
		"klub_tokenInfo":    {handler: queryHandler(func() core.QueryMsg { return core.QueryMsg{TokenInfo: &struct{}{}} })},
		"klub_minter":       {handler: queryHandler(func() core.QueryMsg { return core.QueryMsg{Minter: &struct{}{}} })},
		"klub_config":       {handler: queryHandler(func() core.QueryMsg { return core.QueryMsg{Config: &struct{}{}} })},
		"klub_pool":         {handler: queryHandler(func() core.QueryMsg { return core.QueryMsg{Pool: &struct{}{}} })},
		"klub_contractInfo": {handler: queryHandler(func() core.QueryMsg { return core.QueryMsg{ContractInfo: &struct{}{}} })},
		"klub_client":       {handler: (*Server).handleClient},
		"klub_clients":      {handler: (*Server).handleClients},
		"klub_status":       {handler: (*Server).handleStatus},
		"klub_journal":      {handler: (*Server).handleJournal},
	}
}

type instantiateParams struct {
	Sender string `json:"sender,omitempty"`
	core.InstantiateMsg
}

type depositParams struct {
	Sender string      `json:"sender,omitempty"`
	Funds  types.Coins `json:"funds"`
}

type transferParams struct {
	Sender string `json:"sender,omitempty"`
	core.TransferMsg
}

type burnParams struct {
	Sender string `json:"sender,omitempty"`
	core.BurnMsg
}

type sendParams struct {
	Sender string `json:"sender,omitempty"`
	core.SendMsg
}

type addressParams struct {
	Address string `json:"address"`
}

// journalParams selects either the entry committed at Height or the most
// recent Limit entries.
type journalParams struct {
	Limit  int    `json:"limit,omitempty"`
	Height uint64 `json:"height,omitempty"`
}

func (s *Server) handleInstantiate(c *call) (interface{}, *RPCError) {
	var params instantiateParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	sender, rpcErr := s.resolveSender(c, params.Sender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.caller = sender
	resp, err := s.app.Instantiate(c.ctx, core.MessageInfo{Sender: sender}, params.InstantiateMsg)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *Server) handleDeposit(c *call) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.execute(c, params.Sender, params.Funds, core.ExecuteMsg{Deposit: &core.DepositMsg{}})
}

func (s *Server) handleTransfer(c *call) (interface{}, *RPCError) {
	var params transferParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.execute(c, params.Sender, nil, core.ExecuteMsg{Transfer: &params.TransferMsg})
}

func (s *Server) handleBurn(c *call) (interface{}, *RPCError) {
	var params burnParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.execute(c, params.Sender, nil, core.ExecuteMsg{Burn: &params.BurnMsg})
}

func (s *Server) handleSend(c *call) (interface{}, *RPCError) {
	var params sendParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.execute(c, params.Sender, nil, core.ExecuteMsg{Send: &params.SendMsg})
}

func (s *Server) execute(c *call, claimed string, funds types.Coins, msg core.ExecuteMsg) (interface{}, *RPCError) {
	sender, rpcErr := s.resolveSender(c, claimed)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.caller = sender
	resp, err := s.app.Execute(c.ctx, core.MessageInfo{Sender: sender, Funds: funds}, msg)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func queryHandler(build func() core.QueryMsg) func(*Server, *call) (interface{}, *RPCError) {
	return func(s *Server, c *call) (interface{}, *RPCError) {
		if len(c.req.Params) > 1 {
			return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "method takes no params", nil)
		}
		return s.query(c, build())
	}
}

func (s *Server) query(c *call, msg core.QueryMsg) (interface{}, *RPCError) {
	resp, err := s.app.Query(c.ctx, msg)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (s *Server) handleBalance(c *call) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.query(c, core.QueryMsg{Balance: &core.BalanceQuery{Address: params.Address}})
}

func (s *Server) handleClient(c *call) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.query(c, core.QueryMsg{Client: &core.ClientQuery{Address: params.Address}})
}

func (s *Server) handleClients(c *call) (interface{}, *RPCError) {
	var params core.ClientsQuery
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.query(c, core.QueryMsg{Clients: &params})
}

func (s *Server) handleStatus(_ *call) (interface{}, *RPCError) {
	return &StatusResponse{
		Contract:      s.app.Contract().String(),
		AcceptedDenom: s.app.AcceptedDenom(),
		Height:        s.app.Height(),
		Root:          s.app.Root().Hex(),
	}, nil
}

func (s *Server) handleJournal(c *call) (interface{}, *RPCError) {
	if s.journal == nil {
		return nil, newRPCError(http.StatusNotImplemented, codeJournalDisabled, "journal not configured", nil)
	}
	var params journalParams
	if rpcErr := decodeParams(c.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	var entries []journal.Entry
	if params.Height > 0 {
		entry, err := s.journal.ByHeight(c.ctx, params.Height)
		if errors.Is(err, journal.ErrNotFound) {
			return nil, newRPCError(http.StatusNotFound, codeNotFound, err.Error(), params.Height)
		}
		if err != nil {
			return nil, newRPCError(http.StatusInternalServerError, codeServerError, "journal unavailable", err.Error())
		}
		entries = []journal.Entry{*entry}
	} else {
		recent, err := s.journal.Recent(c.ctx, params.Limit)
		if err != nil {
			return nil, newRPCError(http.StatusInternalServerError, codeServerError, "journal unavailable", err.Error())
		}
		entries = recent
	}
	out := make([]JournalEntryResult, 0, len(entries))
	for i := range entries {
		evts, err := entries[i].DecodeEvents()
		if err != nil {
			return nil, newRPCError(http.StatusInternalServerError, codeServerError, "journal corrupt", err.Error())
		}
		out = append(out, JournalEntryResult{
			ID:     entries[i].ID.String(),
			Height: entries[i].Height,
			Root:   entries[i].Root,
			Action: entries[i].Action,
			Sender: entries[i].Sender,
			Events: evts,
			Time:   entries[i].CreatedAt.Unix(),
		})
	}
	return out, nil
}

// mapError translates ledger errors onto JSON-RPC error objects.
func mapError(err error) *RPCError {
	reason := core.RejectionReason(err)
	switch {
	case errors.Is(err, deposit.ErrWrongPaymentToken):
		return newRPCError(http.StatusBadRequest, codeWrongPaymentToken, err.Error(), reason)
	case errors.Is(err, deposit.ErrUnexpectedFunds):
		return newRPCError(http.StatusBadRequest, codeUnexpectedFunds, err.Error(), reason)
	case errors.Is(err, deposit.ErrZeroDeposit):
		return newRPCError(http.StatusBadRequest, codeZeroDeposit, err.Error(), reason)
	case errors.Is(err, core.ErrInvalidMessage),
		errors.Is(err, deposit.ErrInvalidFunds),
		errors.Is(err, deposit.ErrInvalidDepositor),
		errors.Is(err, crypto.ErrMalformedBech),
		errors.Is(err, crypto.ErrAddressPrefix),
		errors.Is(err, crypto.ErrAddressLength):
		return newRPCError(http.StatusBadRequest, codeInvalidParams, err.Error(), reason)
	case errors.Is(err, deposit.ErrClientNotFound):
		return newRPCError(http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, core.ErrNotInstantiated),
		errors.Is(err, core.ErrAlreadyInstantiated),
		errors.Is(err, deposit.ErrNotConfigured),
		errors.Is(err, deposit.ErrAlreadyConfigured),
		errors.Is(err, token.ErrNotInitialized):
		return newRPCError(http.StatusConflict, codeLifecycle, err.Error(), reason)
	case core.IsTokenError(err), errors.Is(err, types.ErrAmountOverflow):
		return newRPCError(http.StatusBadRequest, codeTokenRejected, err.Error(), reason)
	default:
		return newRPCError(http.StatusInternalServerError, codeServerError, "internal error", err.Error())
	}
}
