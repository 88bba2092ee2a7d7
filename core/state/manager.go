package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"stakeoracle/storage"
)

var (
	errClosedTx    = errors.New("state: transaction already finished")
	errNotTx       = errors.New("state: manager is not a transaction")
	errEmptyKVKey  = errors.New("kv: key must not be empty")
	errDestination = errors.New("kv: destination must be a non-nil pointer to a slice")
)

type pendingValue struct {
	value   []byte
	deleted bool
}

// Manager reads and writes RLP encoded records addressed by keccak256 hashed
// keys. A root manager writes straight to the database; managers returned by
// Begin buffer writes until Commit.
type Manager struct {
	db      storage.Database
	parent  *Manager
	pending map[string]pendingValue
	done    bool
}

// NewManager creates a root state manager over db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction layered on top of m. Reads observe the
// transaction's own writes first.
func (m *Manager) Begin() *Manager {
	return &Manager{db: m.db, parent: m, pending: make(map[string]pendingValue)}
}

// Commit publishes buffered writes to the parent. Transactions opened on a
// root manager flush to the database as a single atomic batch.
func (m *Manager) Commit() error {
	if m.parent == nil {
		return errNotTx
	}
	if m.done {
		return errClosedTx
	}
	m.done = true
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if m.parent.parent != nil {
		for _, key := range keys {
			m.parent.pending[key] = m.pending[key]
		}
		return nil
	}
	batch := storage.NewBatch()
	for _, key := range keys {
		entry := m.pending[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	return m.db.Write(batch)
}

// Discard drops buffered writes. It is safe to call after Commit.
func (m *Manager) Discard() {
	if m.parent == nil {
		return
	}
	m.done = true
	m.pending = make(map[string]pendingValue)
}

// Dirty reports the number of keys written inside the transaction.
func (m *Manager) Dirty() int { return len(m.pending) }

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if m.parent != nil {
		if m.done {
			return nil, errClosedTx
		}
		if entry, ok := m.pending[string(hashed)]; ok {
			if entry.deleted {
				return nil, nil
			}
			return append([]byte(nil), entry.value...), nil
		}
		return m.parent.get(hashed)
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(hashed, value []byte) error {
	if m.parent == nil {
		return m.db.Put(hashed, value)
	}
	if m.done {
		return errClosedTx
	}
	m.pending[string(hashed)] = pendingValue{value: append([]byte(nil), value...)}
	return nil
}

func (m *Manager) del(hashed []byte) error {
	if m.parent == nil {
		return m.db.Delete(hashed)
	}
	if m.done {
		return errClosedTx
	}
	m.pending[string(hashed)] = pendingValue{deleted: true}
	return nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKVKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKVKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKVKey
	}
	return m.del(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return errEmptyKVKey
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.put(hashed, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return errEmptyKVKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Slice {
			return errDestination
		}
		elem := val.Elem()
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// ParamStoreSet stores a raw parameter payload.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	key := ParamStoreKey(name)
	if len(key) == len(paramStorePrefix) {
		return fmt.Errorf("params: name must not be empty")
	}
	return m.KVPut(key, value)
}

// ParamStoreGet loads a raw parameter payload.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	var value []byte
	ok, err := m.KVGet(ParamStoreKey(name), &value)
	if err != nil || !ok {
		return nil, ok, err
	}
	return value, true, nil
}
