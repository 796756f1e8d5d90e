package token

import "errors"

var (
	ErrNilState            = errors.New("token: state not configured")
	ErrNotInitialized      = errors.New("token: not initialized")
	ErrAlreadyInitialized  = errors.New("token: already initialized")
	ErrInvalidZeroAmount   = errors.New("token: invalid zero amount")
	ErrUnauthorized        = errors.New("token: unauthorized")
	ErrCannotExceedCap     = errors.New("token: minting cannot exceed the cap")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidRecipient    = errors.New("token: invalid recipient")
	ErrInvalidName         = errors.New("token: name is not in the expected format (3-50 UTF-8 bytes)")
	ErrInvalidSymbol       = errors.New("token: ticker symbol is not in expected format [a-zA-Z\\-]{3,12}")
	ErrInvalidDecimals     = errors.New("token: decimals must not exceed 18")
	ErrReceiverRejected    = errors.New("token: receiving contract rejected send")
)
