package state

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"pawnchain/core/events"
	"pawnchain/core/types"
	"pawnchain/storage"
)

type record struct {
	Owner  [20]byte
	Amount *big.Int
	Tags   []string
}

func newTestStore(t *testing.T) (*Store, *events.Recorder) {
	t.Helper()
	store := NewStore(storage.NewMemDB())
	rec := &events.Recorder{}
	store.SetEmitter(rec)
	return store, rec
}

func TestUpdateCommitsWritesAndEvents(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(m *Manager) error {
		if err := m.KVPut([]byte("rec"), record{Owner: [20]byte{1}, Amount: big.NewInt(42), Tags: []string{"a"}}); err != nil {
			return err
		}
		var readBack record
		ok, err := m.KVGet([]byte("rec"), &readBack)
		require.True(t, ok)
		require.Equal(t, int64(42), readBack.Amount.Int64())
		m.Emit(types.NewEvent("test.written", "key", "rec"))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{"test.written"}, rec.Types())

	require.NoError(t, store.View(ctx, func(m *Manager) error {
		var got record
		ok, err := m.KVGet([]byte("rec"), &got)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, [20]byte{1}, got.Owner)
		require.Equal(t, []string{"a"}, got.Tags)
		return nil
	}))
}

func TestUpdateFailureLeavesStateUntouched(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(m *Manager) error {
		return m.KVPut([]byte("counter"), uint64(1))
	}))

	compensated := []string{}
	boom := errors.New("boom")
	err := store.Update(ctx, func(m *Manager) error {
		require.NoError(t, m.KVPut([]byte("counter"), uint64(2)))
		require.NoError(t, m.KVPut([]byte("other"), uint64(9)))
		m.OnAbort(func() { compensated = append(compensated, "first") })
		m.OnAbort(func() { compensated = append(compensated, "second") })
		m.Emit(types.NewEvent("test.dropped"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"second", "first"}, compensated)
	require.Empty(t, rec.Types())

	require.NoError(t, store.View(ctx, func(m *Manager) error {
		var counter uint64
		ok, err := m.KVGet([]byte("counter"), &counter)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(1), counter)
		ok, err = m.KVGet([]byte("other"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestBeforeCommitCheckAbortsUnit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	errUnsettled := errors.New("unsettled")

	err := store.Update(ctx, func(m *Manager) error {
		require.NoError(t, m.KVPut([]byte("k"), uint64(7)))
		m.BeforeCommit(func() error { return errUnsettled })
		return nil
	})
	require.ErrorIs(t, err, errUnsettled)

	require.NoError(t, store.View(ctx, func(m *Manager) error {
		ok, err := m.KVGet([]byte("k"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestCancelledContextAbortsUnit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := store.Update(ctx, func(m *Manager) error {
		cancel()
		return m.KVPut([]byte("k"), uint64(1))
	})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, store.View(context.Background(), func(m *Manager) error {
		ok, err := m.KVGet([]byte("k"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestViewRejectsWrites(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.View(context.Background(), func(m *Manager) error {
		require.True(t, m.ReadOnly())
		return m.KVPut([]byte("k"), uint64(1))
	})
	require.ErrorIs(t, err, errReadOnly)
}

func TestSequenceAndDeletes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(m *Manager) error {
		for want := uint64(1); want <= 3; want++ {
			got, err := m.NextSequence([]byte("seq"))
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
		require.NoError(t, m.KVAppend([]byte("list"), []byte("x")))
		require.NoError(t, m.KVAppend([]byte("list"), []byte("x")))
		require.NoError(t, m.KVAppend([]byte("list"), []byte("y")))
		require.NoError(t, m.KVPut([]byte("gone"), uint64(1)))
		return m.KVDelete([]byte("gone"))
	}))

	require.NoError(t, store.View(ctx, func(m *Manager) error {
		seq, err := m.Sequence([]byte("seq"))
		require.NoError(t, err)
		require.Equal(t, uint64(3), seq)

		var list [][]byte
		require.NoError(t, m.KVGetList([]byte("list"), &list))
		require.Equal(t, [][]byte{[]byte("x"), []byte("y")}, list)

		var empty [][]byte
		require.NoError(t, m.KVGetList([]byte("missing"), &empty))
		require.NotNil(t, empty)
		require.Len(t, empty, 0)

		ok, err := m.KVGet([]byte("gone"), nil)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestEnsureSchemaStampsAndChecks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx, false))
	require.NoError(t, store.View(ctx, func(m *Manager) error {
		v, ok, err := m.SchemaVersion()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, SchemaVersion, v)
		return nil
	}))
	require.NoError(t, store.EnsureSchema(ctx, false))

	require.NoError(t, store.Update(ctx, func(m *Manager) error {
		return m.SetSchemaVersion(SchemaVersion + 1)
	}))
	require.ErrorIs(t, store.EnsureSchema(ctx, false), ErrSchemaMismatch)
	require.NoError(t, store.EnsureSchema(ctx, true))
}
