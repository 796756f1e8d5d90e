package deposit

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"klubstake/core/events"
	"klubstake/core/types"
)

// Minter is the receipt token ledger operation the engine depends on. A
// failed mint must leave the ledger untouched.
type Minter interface {
	Mint(authority, recipient []byte, amount *big.Int) error
}

// Engine is the deposit accounting state machine.
type Engine struct {
	st       kvState
	registry *Registry
	pool     *PoolLedger
	minter   Minter
	contract []byte
	policy   Policy
	emitter  events.Emitter
}

// NewEngine constructs a deposit engine with the default policy.
func NewEngine() *Engine {
	return &Engine{policy: DefaultPolicy(), emitter: events.NoopEmitter{}}
}

// SetState configures the store handle shared by the registry and pool ledger.
func (e *Engine) SetState(st kvState) {
	e.st = st
	e.registry = NewRegistry(st)
	e.pool = NewPoolLedger(st)
}

// SetMinter configures the receipt token ledger and the identity the engine
// mints as.
func (e *Engine) SetMinter(minter Minter, contract []byte) {
	e.minter = minter
	e.contract = append([]byte(nil), contract...)
}

// SetPolicy overrides the deposit acceptance rules.
func (e *Engine) SetPolicy(policy Policy) {
	if policy.ExtraFunds == "" {
		policy.ExtraFunds = ExtraFundsIgnore
	}
	e.policy = policy
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Registry exposes the client registry for read-only queries.
func (e *Engine) Registry() *Registry { return e.registry }

// Pool exposes the pool ledger for read-only queries.
func (e *Engine) Pool() *PoolLedger { return e.pool }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

// Setup writes the configuration record and a zeroed pool. The client index
// starts empty.
func (e *Engine) Setup(params SetupParams) (*Config, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	if !validIdentity(params.Creator) {
		return nil, fmt.Errorf("%w: creator identity", ErrInvalidConfig)
	}
	officer := params.FinancialOfficer
	if len(officer) == 0 {
		officer = params.Creator
	}
	if !validIdentity(officer) {
		return nil, fmt.Errorf("%w: financial officer identity", ErrInvalidConfig)
	}
	denom := strings.TrimSpace(params.AcceptedDenom)
	if denom == "" {
		return nil, fmt.Errorf("%w: accepted denom must not be empty", ErrInvalidConfig)
	}
	if err := types.ValidateAmount(params.MinWithdrawal); err != nil {
		return nil, fmt.Errorf("%w: min withdrawal: %w", ErrInvalidConfig, err)
	}
	ok, err := e.st.KVGet(configKey, nil)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyConfigured
	}
	cfg := &Config{
		Admin:            append([]byte(nil), params.Creator...),
		FinancialOfficer: append([]byte(nil), officer...),
		AcceptedDenom:    denom,
		MinWithdrawal:    types.CloneAmount(params.MinWithdrawal),
	}
	if err := e.st.KVPut(configKey, cfg); err != nil {
		return nil, err
	}
	if err := e.pool.reset(); err != nil {
		return nil, err
	}
	e.emit(ConfiguredEvent(cfg))
	return cfg.Clone(), nil
}

// Config returns the stored configuration record.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	cfg := new(Config)
	ok, err := e.st.KVGet(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	return cfg.Clone(), nil
}

// ProcessDeposit credits the accepted denomination in funds to depositor and
// mints the same quantity of receipt tokens.
//
// Every check, including overflow of the pool and client totals, runs before
// the mint. Pool and registry writes happen only after the mint succeeds, so
// a rejected deposit leaves no local trace even without an enclosing
// rollback. Mint errors are returned unwrapped.
func (e *Engine) ProcessDeposit(depositor []byte, funds types.Coins) (*Receipt, error) {
	if e == nil || e.st == nil {
		return nil, ErrNilState
	}
	if e.minter == nil {
		return nil, ErrNilMinter
	}
	if !validIdentity(depositor) {
		return nil, ErrInvalidDepositor
	}
	if err := funds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFunds, err)
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	coin, ok := funds.Find(cfg.AcceptedDenom)
	if !ok {
		return nil, ErrWrongPaymentToken
	}
	extra := funds.Without(cfg.AcceptedDenom)
	if len(extra) > 0 && e.policy.ExtraFunds == ExtraFundsReject {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFunds, strings.Join(extra.Denoms(), ","))
	}
	quantity := coin.Amount
	if quantity.Sign() == 0 && !e.policy.AllowZeroDeposit {
		return nil, ErrZeroDeposit
	}

	if _, err := e.pool.plan(quantity); err != nil {
		return nil, err
	}
	if _, _, err := e.registry.plan(depositor, quantity); err != nil {
		return nil, err
	}

	if err := e.minter.Mint(e.contract, depositor, quantity); err != nil {
		return nil, err
	}

	if _, err := e.pool.RecordDeposit(quantity); err != nil {
		return nil, err
	}
	_, created, err := e.registry.Upsert(depositor, quantity)
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{
		Depositor: append([]byte(nil), depositor...),
		Quantity:  types.CloneAmount(quantity),
		NewClient: created,
	}
	if e.policy.ExtraFunds == ExtraFundsIgnore && len(extra) > 0 {
		receipt.Ignored = extra
	}
	e.emit(DepositReceivedEvent(receipt))
	return receipt, nil
}

// Audit verifies the ledger invariants: staked never exceeds the pool total,
// the pool's staked total equals the sum of client stakes, and the index
// holds each identity once with a backing record.
func (e *Engine) Audit() error {
	if e == nil || e.st == nil {
		return ErrNilState
	}
	pool, err := e.pool.Get()
	if err != nil {
		return err
	}
	if pool.TotalStaked.Cmp(pool.TotalAmount) > 0 {
		return fmt.Errorf("%w: staked %s exceeds total %s", ErrInvariantViolation, pool.TotalStaked, pool.TotalAmount)
	}
	index, err := e.registry.ListAll()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(index))
	sum := big.NewInt(0)
	for _, addr := range index {
		if _, dup := seen[string(addr)]; dup {
			return fmt.Errorf("%w: duplicate index entry %s", ErrInvariantViolation, addrString(addr))
		}
		seen[string(addr)] = struct{}{}
		record, ok, err := e.registry.Get(addr)
		if err != nil {
			if errors.Is(err, ErrInvalidDepositor) {
				return fmt.Errorf("%w: malformed index entry", ErrInvariantViolation)
			}
			return err
		}
		if !ok {
			return fmt.Errorf("%w: index entry %s has no record", ErrInvariantViolation, addrString(addr))
		}
		sum.Add(sum, record.StakedAmount)
	}
	if sum.Cmp(pool.TotalStaked) != 0 {
		return fmt.Errorf("%w: client stakes %s differ from pool staked %s", ErrInvariantViolation, sum, pool.TotalStaked)
	}
	return nil
}
