package deposit

import "errors"

var (
	ErrNilState           = errors.New("deposit: state not configured")
	ErrNilMinter          = errors.New("deposit: receipt token minter not configured")
	ErrNotConfigured      = errors.New("deposit: configuration not found")
	ErrAlreadyConfigured  = errors.New("deposit: already configured")
	ErrWrongPaymentToken  = errors.New("deposit: wrong payment token")
	ErrUnexpectedFunds    = errors.New("deposit: unexpected funds attached")
	ErrZeroDeposit        = errors.New("deposit: zero deposit")
	ErrInvalidFunds       = errors.New("deposit: invalid attached funds")
	ErrInvalidDepositor   = errors.New("deposit: invalid depositor identity")
	ErrInvalidConfig      = errors.New("deposit: invalid configuration")
	ErrInvalidPolicy      = errors.New("deposit: unknown extra funds policy")
	ErrInvariantViolation = errors.New("deposit: ledger invariant violated")
)
