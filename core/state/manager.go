package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"pawnchain/core/types"
	"pawnchain/storage"
)

var errReadOnly = errors.New("state: write attempted in read-only unit")

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Manager is the view of state handed to a single unit of work. Writes are
// buffered until the owning Store commits the unit; reads observe the unit's
// own writes first.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db       storage.Database
	readOnly bool
	writes   map[string]pendingWrite
	order    []string
	events   []*types.Event
	checks   []func() error
	aborts   []func()
	scratch  map[string]interface{}
}

func newManager(db storage.Database, readOnly bool) *Manager {
	return &Manager{
		db:       db,
		readOnly: readOnly,
		writes:   make(map[string]pendingWrite),
		scratch:  make(map[string]interface{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) rawGet(hashed []byte) ([]byte, error) {
	if w, ok := m.writes[string(hashed)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) rawPut(hashed, value []byte) error {
	if m.readOnly {
		return errReadOnly
	}
	k := string(hashed)
	if _, seen := m.writes[k]; !seen {
		m.order = append(m.order, k)
	}
	m.writes[k] = pendingWrite{value: value}
	return nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the backend.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(kvKey(key))
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

// KVDelete removes the key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m.readOnly {
		return errReadOnly
	}
	hashed := string(kvKey(key))
	if _, seen := m.writes[hashed]; !seen {
		m.order = append(m.order, hashed)
	}
	m.writes[hashed] = pendingWrite{deleted: true}
	return nil
}

// KVAppend appends value to the RLP-encoded byte slice list stored under key.
// Duplicate values are ignored to keep the index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList decodes the list stored under key into out, which must be a
// pointer to a slice. Absent keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must be a non-nil slice pointer")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		val.Elem().Set(reflect.MakeSlice(val.Elem().Type(), 0, 0))
	}
	return nil
}

// NextSequence increments and returns the counter stored under name. The first
// value handed out is 1.
func (m *Manager) NextSequence(name []byte) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(name, &current); err != nil {
		return 0, err
	}
	current++
	if err := m.KVPut(name, current); err != nil {
		return 0, err
	}
	return current, nil
}

// Sequence returns the current counter value without advancing it.
func (m *Manager) Sequence(name []byte) (uint64, error) {
	var current uint64
	_, err := m.KVGet(name, &current)
	return current, err
}

// Emit buffers an event. Buffered events are delivered only if the unit
// commits.
func (m *Manager) Emit(evt *types.Event) {
	if evt == nil || m.readOnly {
		return
	}
	m.events = append(m.events, evt)
}

// BeforeCommit registers a check that runs after the unit body succeeded and
// before anything is written. A failing check aborts the unit.
func (m *Manager) BeforeCommit(check func() error) {
	if check != nil {
		m.checks = append(m.checks, check)
	}
}

// OnAbort registers a compensation for side effects performed outside the
// store. Compensations run in reverse registration order when the unit aborts.
func (m *Manager) OnAbort(fn func()) {
	if fn != nil {
		m.aborts = append(m.aborts, fn)
	}
}

// Scratch returns a transient per-unit value. Scratch values are never
// persisted.
func (m *Manager) Scratch(key string) (interface{}, bool) {
	v, ok := m.scratch[key]
	return v, ok
}

// SetScratch stores a transient per-unit value.
func (m *Manager) SetScratch(key string, value interface{}) {
	m.scratch[key] = value
}

// ReadOnly reports whether the manager belongs to a View unit.
func (m *Manager) ReadOnly() bool { return m.readOnly }

// Pending reports the number of buffered writes.
func (m *Manager) Pending() int { return len(m.order) }

func (m *Manager) batch() *storage.Batch {
	b := storage.NewBatch()
	for _, k := range m.order {
		w := m.writes[k]
		if w.deleted {
			b.Delete([]byte(k))
			continue
		}
		b.Put([]byte(k), w.value)
	}
	return b
}

func (m *Manager) runChecks() error {
	for i := 0; i < len(m.checks); i++ {
		if err := m.checks[i](); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) abort() {
	for i := len(m.aborts) - 1; i >= 0; i-- {
		m.aborts[i]()
	}
	m.aborts = nil
	m.writes = map[string]pendingWrite{}
	m.order = nil
	m.events = nil
}
