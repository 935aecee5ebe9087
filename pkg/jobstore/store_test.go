package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sq, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	mem := NewMemory()

	return map[string]Store{
		"sqlite": sq,
		"memory": mem,
	}
}

func TestLoadAbsentReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.EnsureTable(ctx))
			_, err := store.Load(ctx, "i-doesnotexist")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.EnsureTable(ctx))

			raw := []byte(`{"instance_id":"i-abc123","conversion_step":"stop_instance"}`)
			require.NoError(t, store.Save(ctx, "i-abc123", raw))

			got, err := store.Load(ctx, "i-abc123")
			require.NoError(t, err)
			assert.JSONEq(t, string(raw), string(got))
		})
	}
}

func TestSaveOverwritesPreviousRecord(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.EnsureTable(ctx))

			require.NoError(t, store.Save(ctx, "i-abc123", []byte(`{"conversion_step":"stop_instance"}`)))
			require.NoError(t, store.Save(ctx, "i-abc123", []byte(`{"conversion_step":"create_replacement_ami"}`)))

			got, err := store.Load(ctx, "i-abc123")
			require.NoError(t, err)
			assert.JSONEq(t, `{"conversion_step":"create_replacement_ami"}`, string(got))
		})
	}
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.EnsureTable(ctx))
			require.NoError(t, store.EnsureTable(ctx))
		})
	}
}

func TestDistinctKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.EnsureTable(ctx))

			require.NoError(t, store.Save(ctx, "i-one", []byte(`{"instance_id":"i-one"}`)))
			require.NoError(t, store.Save(ctx, "i-two", []byte(`{"instance_id":"i-two"}`)))

			one, err := store.Load(ctx, "i-one")
			require.NoError(t, err)
			two, err := store.Load(ctx, "i-two")
			require.NoError(t, err)

			assert.JSONEq(t, `{"instance_id":"i-one"}`, string(one))
			assert.JSONEq(t, `{"instance_id":"i-two"}`, string(two))
		})
	}
}
