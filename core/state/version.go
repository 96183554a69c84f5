package state

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// SchemaVersion identifies the key layout written by this binary. Bump it
// whenever a stored record changes shape.
const SchemaVersion uint32 = 1

var (
	schemaVersionKey = []byte("state/schema-version")
	// ErrSchemaMismatch reports state written by an incompatible binary.
	ErrSchemaMismatch = errors.New("state: schema version mismatch")
)

// SetSchemaVersion records version in the unit.
func (m *Manager) SetSchemaVersion(version uint32) error {
	return m.KVPut(schemaVersionKey, uint64(version))
}

// SchemaVersion returns the stored version and whether one was present.
func (m *Manager) SchemaVersion() (uint32, bool, error) {
	var stored uint64
	ok, err := m.KVGet(schemaVersionKey, &stored)
	if err != nil || !ok {
		return 0, ok, err
	}
	if stored > math.MaxUint32 {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureSchema stamps an empty store with SchemaVersion and rejects a store
// stamped with anything else unless allowMismatch is set.
func (s *Store) EnsureSchema(ctx context.Context, allowMismatch bool) error {
	return s.Update(ctx, func(m *Manager) error {
		version, ok, err := m.SchemaVersion()
		if err != nil {
			return err
		}
		switch {
		case !ok:
			return m.SetSchemaVersion(SchemaVersion)
		case version == SchemaVersion, allowMismatch:
			return nil
		default:
			return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaMismatch, version, SchemaVersion)
		}
	})
}
