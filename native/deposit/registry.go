package deposit

import (
	"bytes"
	"errors"
	"math/big"

	"klubstake/core/types"
	"klubstake/crypto"
)

// ErrClientNotFound is returned when a pagination cursor names an identity
// that has never deposited.
var ErrClientNotFound = errors.New("deposit: client not found")

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Registry owns the per-depositor records and the ordered index of depositor
// identities. Upsert is the only mutator and keeps both in step: an identity
// is indexed if and only if its record exists.
type Registry struct {
	st kvState
}

// NewRegistry creates a registry backed by the provided state.
func NewRegistry(st kvState) *Registry {
	return &Registry{st: st}
}

func validIdentity(addr []byte) bool {
	return len(addr) == crypto.AddressLength
}

// Get returns the record for addr. The boolean reports whether it exists.
func (r *Registry) Get(addr []byte) (*Client, bool, error) {
	if r == nil || r.st == nil {
		return nil, false, ErrNilState
	}
	if !validIdentity(addr) {
		return nil, false, ErrInvalidDepositor
	}
	record := new(Client)
	ok, err := r.st.KVGet(clientKey(addr), record)
	if err != nil || !ok {
		return nil, false, err
	}
	if record.StakedAmount == nil {
		record.StakedAmount = big.NewInt(0)
	}
	if record.YieldGenerated == nil {
		record.YieldGenerated = big.NewInt(0)
	}
	return record, true, nil
}

// plan computes the record Upsert would write without touching state.
func (r *Registry) plan(addr []byte, delta *big.Int) (*Client, bool, error) {
	if err := types.ValidateAmount(delta); err != nil {
		return nil, false, err
	}
	existing, ok, err := r.Get(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &Client{StakedAmount: types.CloneAmount(delta), YieldGenerated: big.NewInt(0)}, true, nil
	}
	staked, err := types.AddAmounts(existing.StakedAmount, delta)
	if err != nil {
		return nil, false, err
	}
	existing.StakedAmount = staked
	return existing, false, nil
}

// Upsert credits delta to addr, creating and indexing the record on first
// sight. It returns the updated record and whether it was created.
func (r *Registry) Upsert(addr []byte, delta *big.Int) (*Client, bool, error) {
	record, created, err := r.plan(addr, delta)
	if err != nil {
		return nil, false, err
	}
	if err := r.st.KVPut(clientKey(addr), record); err != nil {
		return nil, false, err
	}
	if created {
		if err := r.st.KVAppend(clientIndexKey, addr); err != nil {
			return nil, false, err
		}
	}
	return record.Clone(), created, nil
}

// ListAll returns every known depositor identity in first-deposit order.
func (r *Registry) ListAll() ([][]byte, error) {
	if r == nil || r.st == nil {
		return nil, ErrNilState
	}
	var index [][]byte
	if err := r.st.KVGetList(clientIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// List pages through the index. startAfter is exclusive; nil starts at the
// beginning. A non-positive limit returns every remaining entry.
func (r *Registry) List(startAfter []byte, limit int) ([]ClientEntry, error) {
	index, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	start := 0
	if len(startAfter) > 0 {
		pos := -1
		for i, addr := range index {
			if bytes.Equal(addr, startAfter) {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, ErrClientNotFound
		}
		start = pos + 1
	}
	end := len(index)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]ClientEntry, 0, end-start)
	for _, addr := range index[start:end] {
		record, ok, err := r.Get(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvariantViolation
		}
		out = append(out, ClientEntry{Address: append([]byte(nil), addr...), Client: record})
	}
	return out, nil
}
