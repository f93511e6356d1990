package state

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/storage"
)

// Manager layers a journaled write overlay on a key-value database. Writes
// accumulate in the overlay; Snapshot and RevertToSnapshot give callers
// cheap nested rollback, Commit flushes the surviving overlay to the
// database, and Discard drops it.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	journal []journalEntry
}

type journalEntry struct {
	key      string
	prior    []byte
	hadPrior bool
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
}

// Snapshot returns an identifier for the current overlay position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds every overlay write made after the identified
// snapshot. Identifiers from before an earlier revert are invalid.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrior {
			m.overlay[entry.key] = entry.prior
		} else {
			delete(m.overlay, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit writes the overlay through to the database and resets the journal.
func (m *Manager) Commit() error {
	for key, value := range m.overlay {
		if value == nil {
			if err := m.db.Delete([]byte(key)); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
				return err
			}
			continue
		}
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.reset()
	return nil
}

// Discard drops every uncommitted overlay write.
func (m *Manager) Discard() {
	m.reset()
}

func (m *Manager) reset() {
	m.overlay = make(map[string][]byte)
	m.journal = nil
}

// get reads through the overlay. A tombstone (nil overlay value) hides the
// underlying database entry.
func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if value, ok := m.overlay[string(key)]; ok {
		if value == nil {
			return nil, false, nil
		}
		return value, true, nil
	}
	value, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key []byte, value []byte) {
	m.record(string(key))
	m.overlay[string(key)] = value
}

func (m *Manager) delete(key []byte) {
	m.record(string(key))
	m.overlay[string(key)] = nil
}

func (m *Manager) record(key string) {
	prior, hadPrior := m.overlay[key]
	m.journal = append(m.journal, journalEntry{key: key, prior: prior, hadPrior: hadPrior})
}

// loadRLP decodes the stored value into out, reporting presence.
func (m *Manager) loadRLP(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// writeRLP encodes the value into the overlay.
func (m *Manager) writeRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

func (m *Manager) getBig(key []byte) (*big.Int, error) {
	data, ok, err := m.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *Manager) putBig(key []byte, value *big.Int) {
	if value == nil || value.Sign() <= 0 {
		m.delete(key)
		return
	}
	m.put(key, value.Bytes())
}
