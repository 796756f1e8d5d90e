package state

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"klubstake/native/token"
	"klubstake/storage"
	"klubstake/storage/trie"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr)
}

type record struct {
	Name   string
	Amount *big.Int
}

func TestKVReadWrite(t *testing.T) {
	mgr := newTestManager(t)

	ok, err := mgr.KVGet([]byte("deposit/pool"), new(record))
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}

	if err := mgr.KVPut([]byte("deposit/pool"), &record{Name: "pool", Amount: big.NewInt(42)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got record
	ok, err = mgr.KVGet([]byte("deposit/pool"), &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "pool" || got.Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	present, err := mgr.KVGet([]byte("deposit/pool"), nil)
	if err != nil || !present {
		t.Fatalf("presence check: ok=%v err=%v", present, err)
	}

	if err := mgr.KVPut(nil, 1); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := newTestManager(t)
	key := []byte("deposit/clients")

	var empty [][]byte
	if err := mgr.KVGetList(key, &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", empty)
	}

	for _, v := range [][]byte{{0x01}, {0x02}, {0x01}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || !bytes.Equal(list[0], []byte{0x01}) || !bytes.Equal(list[1], []byte{0x02}) {
		t.Fatalf("unexpected list: %x", list)
	}
}

func TestTokenSlots(t *testing.T) {
	mgr := newTestManager(t)

	if _, ok, err := mgr.TokenInfoGet(); err != nil || ok {
		t.Fatalf("expected no token info: ok=%v err=%v", ok, err)
	}
	info := &token.Info{Name: "Klub Pebble", Symbol: "kPEBBLE", Decimals: 6, TotalSupply: big.NewInt(7)}
	if err := mgr.TokenInfoPut(info); err != nil {
		t.Fatalf("put info: %v", err)
	}
	got, ok, err := mgr.TokenInfoGet()
	if err != nil || !ok {
		t.Fatalf("get info: ok=%v err=%v", ok, err)
	}
	if got.Symbol != "kPEBBLE" || got.TotalSupply.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected info: %+v", got)
	}

	if err := mgr.TokenMinterPut(&token.Minter{Minter: []byte{0xAA}}); err != nil {
		t.Fatalf("put minter: %v", err)
	}
	minter, ok, err := mgr.TokenMinterGet()
	if err != nil || !ok {
		t.Fatalf("get minter: ok=%v err=%v", ok, err)
	}
	if minter.HasCap || minter.CapValue() != nil {
		t.Fatalf("expected uncapped minter")
	}

	addr := bytes.Repeat([]byte{0x01}, 20)
	balance, err := mgr.TokenBalance(addr)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected zero balance: %v %v", balance, err)
	}
	if err := mgr.TokenBalancePut(addr, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	if err := mgr.TokenBalancePut(addr, big.NewInt(99)); err != nil {
		t.Fatalf("put balance: %v", err)
	}
	balance, err = mgr.TokenBalance(addr)
	if err != nil || balance.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("unexpected balance: %v %v", balance, err)
	}
}

func TestContractInfoAndVersion(t *testing.T) {
	mgr := newTestManager(t)

	if _, err := mgr.ContractInfo(); !errors.Is(err, ErrContractInfoMissing) {
		t.Fatalf("expected missing contract info, got %v", err)
	}
	if err := mgr.SetContractInfo(ContractInfo{Contract: "klub-deposit", Version: "0.1.0"}); err != nil {
		t.Fatalf("set contract info: %v", err)
	}
	info, err := mgr.ContractInfo()
	if err != nil {
		t.Fatalf("contract info: %v", err)
	}
	if info.Contract != "klub-deposit" || info.Version != "0.1.0" {
		t.Fatalf("unexpected contract info: %+v", info)
	}

	if err := EnsureStateVersion(mgr.Trie()); err != nil {
		t.Fatalf("fresh state should pass: %v", err)
	}
	if err := mgr.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := EnsureStateVersion(mgr.Trie()); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
