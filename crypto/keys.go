package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 identity.
type AddressPrefix string

const (
	// KlubPrefix is used for depositor, officer and contract identities.
	KlubPrefix AddressPrefix = "klub"
)

// AddressLength is the byte length of every identity.
const AddressLength = 20

var (
	ErrEmptyAddress   = errors.New("crypto: address must not be empty")
	ErrAddressLength  = errors.New("crypto: address must be 20 bytes")
	ErrAddressPrefix  = errors.New("crypto: unexpected address prefix")
	ErrMalformedBech  = errors.New("crypto: malformed bech32 address")
	errNilPrivateKeys = errors.New("crypto: private key required")
)

// Address represents a 20-byte identity with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress builds an address and panics when b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// MustNewAddress is NewAddress for call sites that already hold raw identity bytes.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	return NewAddress(prefix, b)
}

// DeriveAddress returns a deterministic address from a label. It is used for
// module-owned identities such as the contract itself.
func DeriveAddress(prefix AddressPrefix, label string) Address {
	hash := crypto.Keccak256([]byte(strings.TrimSpace(label)))
	return NewAddress(prefix, hash[len(hash)-AddressLength:])
}

func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no identity bytes.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares the identity bytes of two addresses.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, ErrEmptyAddress
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrMalformedBech, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: error converting bits: %v", ErrMalformedBech, err)
	}
	if len(conv) != AddressLength {
		return Address{}, ErrAddressLength
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAddress decodes addrStr and requires the supplied prefix.
func ParseAddress(prefix AddressPrefix, addrStr string) (Address, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return Address{}, err
	}
	if addr.prefix != prefix {
		return Address{}, fmt.Errorf("%w: got %q want %q", ErrAddressPrefix, addr.prefix, prefix)
	}
	return addr, nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(KlubPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) == 0 {
		return nil, errNilPrivateKeys
	}
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
