package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"klubstake/core/events"
	"klubstake/core/state"
	"klubstake/core/types"
	"klubstake/crypto"
	"klubstake/native/deposit"
	"klubstake/native/token"
	"klubstake/observability"
	klubotel "klubstake/observability/otel"
	"klubstake/storage"
	"klubstake/storage/trie"
)

const (
	// ContractName is written to the contract version record.
	ContractName = "klub-deposit"
	// ContractVersion is the version of the ledger logic in this binary.
	ContractVersion = "0.1.0"
	// DefaultAcceptedDenom is the reserve asset accepted when none is configured.
	DefaultAcceptedDenom = "upebble"

	defaultClientsLimit = 10
	maxClientsLimit     = 30
)

var headKey = []byte("klub/head")

type head struct {
	Root   common.Hash
	Height uint64
}

// JournalEntry describes one committed transition.
type JournalEntry struct {
	Height uint64
	Root   common.Hash
	Action string
	Sender string
	Events []*types.Event
	Time   time.Time
}

// Journal receives every committed transition in commit order.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// Options configures an App. Zero values select defaults.
type Options struct {
	// Contract is the identity the ledger mints as. Defaults to an address
	// derived from ContractName.
	Contract      crypto.Address
	AcceptedDenom string
	Policy        deposit.Policy
	Receiver      token.Receiver
	Hub           *events.Hub
	Journal       Journal
	Logger        *slog.Logger
	Now           func() time.Time
}

// App is the host of the ledger: it serialises calls, owns the state trie and
// provides the transaction boundary. A failed call is rolled back to the last
// committed root, including any receipt token writes; a successful call is
// committed and only then are its events released.
type App struct {
	mu sync.Mutex

	db      storage.Database
	trie    *trie.Trie
	state   *state.Manager
	token   *token.Engine
	deposit *deposit.Engine
	buffer  *events.Buffer

	contract crypto.Address
	denom    string
	height   uint64

	hub     *events.Hub
	journal Journal
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewApp opens the ledger at the last committed root stored in db.
func NewApp(db storage.Database, opts Options) (*App, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	current, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if current.Root != (common.Hash{}) {
		root = current.Root.Bytes()
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("core: open state at %s: %w", current.Root.Hex(), err)
	}
	if err := state.EnsureStateVersion(tr); err != nil {
		return nil, err
	}

	contract := opts.Contract
	if contract.IsZero() {
		contract = crypto.DeriveAddress(crypto.KlubPrefix, ContractName)
	}
	denom := strings.TrimSpace(opts.AcceptedDenom)
	if denom == "" {
		denom = DefaultAcceptedDenom
	}
	policy := opts.Policy
	if policy.ExtraFunds == "" {
		policy.ExtraFunds = deposit.ExtraFundsIgnore
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	manager := state.NewManager(tr)
	buffer := &events.Buffer{}

	tokenEngine := token.NewEngine()
	tokenEngine.SetState(manager)
	tokenEngine.SetEmitter(buffer)
	tokenEngine.SetReceiver(opts.Receiver)

	depositEngine := deposit.NewEngine()
	depositEngine.SetState(manager)
	depositEngine.SetMinter(tokenEngine, contract.Bytes())
	depositEngine.SetPolicy(policy)
	depositEngine.SetEmitter(buffer)

	app := &App{
		db:       db,
		trie:     tr,
		state:    manager,
		token:    tokenEngine,
		deposit:  depositEngine,
		buffer:   buffer,
		contract: contract,
		denom:    denom,
		height:   current.Height,
		hub:      opts.Hub,
		journal:  opts.Journal,
		logger:   logger.With(slog.String("component", "ledger")),
		tracer:   klubotel.Tracer("klubstake/core"),
		now:      now,
	}
	observability.Ledger().SetHeight(current.Height)
	return app, nil
}

func loadHead(db storage.Database) (head, error) {
	data, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return head{}, nil
	}
	if err != nil {
		return head{}, fmt.Errorf("core: read head: %w", err)
	}
	var current head
	if err := rlp.DecodeBytes(data, &current); err != nil {
		return head{}, fmt.Errorf("core: decode head: %w", err)
	}
	return current, nil
}

// Contract returns the identity the ledger mints as.
func (a *App) Contract() crypto.Address { return a.contract }

// AcceptedDenom returns the reserve asset denomination used at setup.
func (a *App) AcceptedDenom() string { return a.denom }

// Height returns the number of committed transitions.
func (a *App) Height() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height
}

// Root returns the last committed state root.
func (a *App) Root() common.Hash {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trie.Root()
}

// Instantiate performs the one-time setup: configuration record, zeroed pool,
// empty client index and the receipt token with the contract as minter.
func (a *App) Instantiate(ctx context.Context, info MessageInfo, msg InstantiateMsg) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(ctx, "instantiate", info.Sender, func() ([]types.Attribute, error) {
		if info.Sender.IsZero() {
			return nil, fmt.Errorf("%w: sender required", ErrInvalidMessage)
		}
		exists, err := a.state.HasContractInfo()
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAlreadyInstantiated
		}
		var officer []byte
		if strings.TrimSpace(msg.FinancialOfficer) != "" {
			addr, err := parseAddress("financial_officer", msg.FinancialOfficer)
			if err != nil {
				return nil, err
			}
			officer = addr.Bytes()
		}
		minWithdrawal, err := parseAmount("min_withdrawal", msg.MinWithdrawal)
		if err != nil {
			return nil, err
		}
		if _, err := a.deposit.Setup(deposit.SetupParams{
			Creator:          info.Sender.Bytes(),
			FinancialOfficer: officer,
			AcceptedDenom:    a.denom,
			MinWithdrawal:    minWithdrawal,
		}); err != nil {
			return nil, err
		}
		if _, err := a.token.Initialize(token.InitParams{
			Name:     msg.Name,
			Symbol:   msg.Symbol,
			Decimals: msg.Decimals,
			Minter:   a.contract.Bytes(),
		}); err != nil {
			return nil, err
		}
		if err := a.state.SetContractInfo(state.ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
			return nil, err
		}
		if err := a.state.SetStateVersion(state.StateVersion); err != nil {
			return nil, err
		}
		return []types.Attribute{types.NewAttribute("action", "instantiate")}, nil
	})
}

// Execute runs one action as a single transition.
func (a *App) Execute(ctx context.Context, info MessageInfo, msg ExecuteMsg) (*Response, error) {
	action, err := msg.Action()
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apply(ctx, action, info.Sender, func() ([]types.Attribute, error) {
		if info.Sender.IsZero() {
			return nil, fmt.Errorf("%w: sender required", ErrInvalidMessage)
		}
		if err := a.requireInstantiated(); err != nil {
			return nil, err
		}
		sender := info.Sender.Bytes()
		switch {
		case msg.Deposit != nil:
			receipt, err := a.deposit.ProcessDeposit(sender, info.Funds)
			if err != nil {
				return nil, err
			}
			return receipt.Attributes(), nil
		case msg.Transfer != nil:
			recipient, err := parseAddress("recipient", msg.Transfer.Recipient)
			if err != nil {
				return nil, err
			}
			amount, err := parseAmount("amount", msg.Transfer.Amount)
			if err != nil {
				return nil, err
			}
			if err := a.token.Transfer(sender, recipient.Bytes(), amount); err != nil {
				return nil, err
			}
			return []types.Attribute{
				types.NewAttribute("action", "transfer"),
				types.NewAttribute("from", info.Sender.String()),
				types.NewAttribute("to", recipient.String()),
				types.NewAttribute("amount", amount.String()),
			}, nil
		case msg.Burn != nil:
			amount, err := parseAmount("amount", msg.Burn.Amount)
			if err != nil {
				return nil, err
			}
			if err := a.token.Burn(sender, amount); err != nil {
				return nil, err
			}
			return []types.Attribute{
				types.NewAttribute("action", "burn"),
				types.NewAttribute("from", info.Sender.String()),
				types.NewAttribute("amount", amount.String()),
			}, nil
		default:
			contract, err := parseAddress("contract", msg.Send.Contract)
			if err != nil {
				return nil, err
			}
			amount, err := parseAmount("amount", msg.Send.Amount)
			if err != nil {
				return nil, err
			}
			if err := a.token.Send(sender, contract.Bytes(), amount, msg.Send.Msg); err != nil {
				return nil, err
			}
			return []types.Attribute{
				types.NewAttribute("action", "send"),
				types.NewAttribute("from", info.Sender.String()),
				types.NewAttribute("to", contract.String()),
				types.NewAttribute("amount", amount.String()),
			}, nil
		}
	})
}

func (a *App) requireInstantiated() error {
	ok, err := a.state.HasContractInfo()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInstantiated
	}
	return nil
}

// apply runs fn against the working trie and either commits it or rolls it
// back. Callers hold a.mu.
func (a *App) apply(ctx context.Context, action string, sender crypto.Address, fn func() ([]types.Attribute, error)) (*Response, error) {
	ctx, span := a.tracer.Start(ctx, "ledger."+action, trace.WithAttributes(
		attribute.String("ledger.action", action),
		attribute.String("ledger.caller", sender.String()),
	))
	defer span.End()
	started := time.Now()

	a.buffer.Discard()
	attrs, err := fn()
	if err != nil {
		return nil, a.abort(span, action, sender, started, err)
	}
	root, err := a.commit()
	if err != nil {
		return nil, a.abort(span, action, sender, started, err)
	}
	batch := a.buffer.Drain()

	observability.Ledger().ObserveTransition(action, "", time.Since(started))
	observability.Ledger().SetHeight(a.height)
	if action == "deposit" {
		a.recordPoolMetrics()
	}
	for _, evt := range batch {
		observability.Events().RecordEvent(evt.Type)
	}
	if a.hub != nil && len(batch) > 0 {
		a.hub.Publish(a.height, batch)
	}
	if a.journal != nil {
		entry := JournalEntry{
			Height: a.height,
			Root:   root,
			Action: action,
			Sender: sender.String(),
			Events: batch,
			Time:   a.now().UTC(),
		}
		if err := a.journal.Record(ctx, entry); err != nil {
			a.logger.Error("journal append failed",
				slog.Uint64("height", a.height),
				slog.String("action", action),
				slog.String("error", err.Error()))
		}
	}
	a.logger.Debug("transition committed",
		slog.String("action", action),
		slog.Uint64("height", a.height),
		slog.String("root", root.Hex()))
	span.SetAttributes(attribute.Int64("ledger.height", int64(a.height)))

	return &Response{
		Attributes: attrs,
		Events:     batch,
		Height:     a.height,
		Root:       root.Hex(),
	}, nil
}

func (a *App) abort(span trace.Span, action string, sender crypto.Address, started time.Time, err error) error {
	a.buffer.Discard()
	if a.trie.Dirty() {
		if rbErr := a.trie.Rollback(); rbErr != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
	}
	reason := RejectionReason(err)
	observability.Ledger().ObserveTransition(action, reason, time.Since(started))
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	a.logger.Warn("transition rolled back",
		slog.String("action", action),
		slog.String("caller", sender.String()),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	return err
}

func (a *App) commit() (common.Hash, error) {
	parent := a.trie.Root()
	next := a.height + 1
	root, err := a.trie.Commit(parent, next)
	if err != nil {
		return common.Hash{}, fmt.Errorf("core: commit state: %w", err)
	}
	encoded, err := rlp.EncodeToBytes(&head{Root: root, Height: next})
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.db.Put(headKey, encoded); err != nil {
		if resetErr := a.trie.Reset(parent); resetErr != nil {
			return common.Hash{}, fmt.Errorf("core: persist head: %v (reset failed: %w)", err, resetErr)
		}
		return common.Hash{}, fmt.Errorf("core: persist head: %w", err)
	}
	a.height = next
	return root, nil
}

func (a *App) recordPoolMetrics() {
	pool, err := a.deposit.Pool().Get()
	if err != nil {
		return
	}
	index, err := a.deposit.Registry().ListAll()
	if err != nil {
		return
	}
	observability.Ledger().RecordPool(pool.TotalAmount, pool.TotalStaked, pool.TotalPendingClaim, len(index))
}

// Audit checks the deposit ledger invariants against committed state.
func (a *App) Audit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInstantiated(); err != nil {
		return err
	}
	return a.deposit.Audit()
}

// RejectionReason maps an error onto a stable label for metrics and logs.
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, deposit.ErrWrongPaymentToken):
		return "wrong_payment_token"
	case errors.Is(err, deposit.ErrZeroDeposit):
		return "zero_deposit"
	case errors.Is(err, deposit.ErrUnexpectedFunds):
		return "unexpected_funds"
	case errors.Is(err, deposit.ErrInvalidFunds), errors.Is(err, deposit.ErrInvalidDepositor), errors.Is(err, ErrInvalidMessage):
		return "invalid_request"
	case errors.Is(err, ErrNotInstantiated), errors.Is(err, ErrAlreadyInstantiated):
		return "lifecycle"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, token.ErrInvalidZeroAmount):
		return "zero_amount"
	case errors.Is(err, token.ErrCannotExceedCap), errors.Is(err, types.ErrAmountOverflow):
		return "overflow"
	case IsTokenError(err):
		return "token_rejected"
	default:
		return "error"
	}
}

// IsTokenError reports whether err originated in the receipt token ledger.
func IsTokenError(err error) bool {
	for _, target := range []error{
		token.ErrInvalidZeroAmount,
		token.ErrUnauthorized,
		token.ErrCannotExceedCap,
		token.ErrInsufficientBalance,
		token.ErrInvalidRecipient,
		token.ErrInvalidName,
		token.ErrInvalidSymbol,
		token.ErrInvalidDecimals,
		token.ErrReceiverRejected,
		token.ErrAlreadyInitialized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
