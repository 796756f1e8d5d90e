package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The state trie and the raw head pointer share the same backend so a single
// directory holds everything a node needs to resume.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type backend struct {
	kv     ethdb.KeyValueStore
	trieDB *triedb.Database
	once   sync.Once
}

func newBackend(kv ethdb.KeyValueStore) *backend {
	db := rawdb.NewDatabase(kv)
	return &backend{kv: kv, trieDB: triedb.NewDatabase(db, triedb.HashDefaults)}
}

func (b *backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b *backend) Has(key []byte) (bool, error) {
	return b.kv.Has(key)
}

func (b *backend) TrieDB() *triedb.Database {
	return b.trieDB
}

func (b *backend) close() {
	b.once.Do(func() {
		_ = b.trieDB.Close()
		_ = b.kv.Close()
	})
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	*backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	ok, err := db.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.kv.Get(key)
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.close()
}

// --- Persistent DB ---

const (
	levelDBCacheMB  = 16
	levelDBHandles  = 64
	levelDBMetricNS = "klub/db/"
)

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*backend
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := gethleveldb.New(path, levelDBCacheMB, levelDBHandles, levelDBMetricNS, false)
	if err != nil {
		return nil, err
	}
	return &LevelDB{backend: newBackend(kv)}, nil
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.kv.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.close()
}
