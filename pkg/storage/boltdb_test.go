package storage

import (
	"errors"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_Backends(t *testing.T) {
	store := newTestStore(t)

	backend := &types.Backend{ID: "b-1", Name: "ceph-1", Driver: "ceph"}
	require.NoError(t, store.CreateBackend(backend))

	got, err := store.GetBackend("b-1")
	require.NoError(t, err)
	assert.Equal(t, "ceph-1", got.Name)
	assert.Equal(t, "ceph", got.Driver)

	byName, err := store.GetBackendByName("ceph-1")
	require.NoError(t, err)
	assert.Equal(t, "b-1", byName.ID)

	_, err = store.GetBackend("missing")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	_, err = store.GetBackendByName("missing")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	// Same name under a different ID is a conflict
	err = store.CreateBackend(&types.Backend{ID: "b-2", Name: "ceph-1"})
	assert.True(t, errors.Is(err, errdefs.ErrAlreadyExists))

	// Same ID is an update
	backend.Driver = "lvm"
	require.NoError(t, store.UpdateBackend(backend))
	got, err = store.GetBackend("b-1")
	require.NoError(t, err)
	assert.Equal(t, "lvm", got.Driver)

	backends, err := store.ListBackends()
	require.NoError(t, err)
	assert.Len(t, backends, 1)
}

func TestBoltStore_Tiers(t *testing.T) {
	store := newTestStore(t)

	// Tier on unknown backend
	err := store.CreateTier(&types.Tier{ID: "t-0", Name: "ssd", BackendID: "nope"})
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	require.NoError(t, store.CreateBackend(&types.Backend{ID: "b-1", Name: "ceph-1"}))
	require.NoError(t, store.CreateBackend(&types.Backend{ID: "b-2", Name: "ceph-2"}))
	require.NoError(t, store.CreateTier(&types.Tier{ID: "t-1", Name: "ssd", BackendID: "b-1"}))
	require.NoError(t, store.CreateTier(&types.Tier{ID: "t-2", Name: "hdd", BackendID: "b-1"}))
	require.NoError(t, store.CreateTier(&types.Tier{ID: "t-3", Name: "ssd", BackendID: "b-2"}))

	err = store.CreateTier(&types.Tier{ID: "t-4", Name: "ssd", BackendID: "b-1"})
	assert.True(t, errors.Is(err, errdefs.ErrAlreadyExists))

	tiers, err := store.ListTiersByBackend("b-1")
	require.NoError(t, err)
	assert.Len(t, tiers, 2)

	// Deleting a backend removes its tiers
	require.NoError(t, store.DeleteBackend("b-1"))
	tiers, err = store.ListTiers()
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "t-3", tiers[0].ID)

	_, err = store.GetTier("t-1")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestBoltStore_UpdatePoolsIsAtomic(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdatePools(func(tx PoolTx) error {
		return tx.PutPool(&types.PoolRecord{ID: "p-1", Pool: "gold", Services: []string{"volume"}})
	}))

	boom := errors.New("boom")
	err := store.UpdatePools(func(tx PoolTx) error {
		if err := tx.PutPool(&types.PoolRecord{ID: "p-2", Pool: "silver"}); err != nil {
			return err
		}
		if err := tx.DeletePool("p-1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing from the failed transaction is visible
	pools, err := store.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "p-1", pools[0].ID)

	got, err := store.GetPool("p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"volume"}, got.Services)
}

func TestBoltStore_PutPoolStripsDisplayNames(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdatePools(func(tx PoolTx) error {
		return tx.PutPool(&types.PoolRecord{
			ID:                "p-1",
			Pool:              "gold",
			StorageSystemName: "ceph-1",
			StorageTierName:   "ssd",
		})
	}))

	got, err := store.GetPool("p-1")
	require.NoError(t, err)
	assert.Empty(t, got.StorageSystemName)
	assert.Empty(t, got.StorageTierName)
}
