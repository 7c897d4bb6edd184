package metrics

import (
	"testing"

	"github.com/cuemby/sdscompose/pkg/storage"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Collect(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.CreateBackend(&types.Backend{ID: "b-1", Name: "ceph-1"}))
	require.NoError(t, store.CreateTier(&types.Tier{ID: "t-1", Name: "ssd", BackendID: "b-1"}))
	require.NoError(t, store.CreateTier(&types.Tier{ID: "t-2", Name: "hdd", BackendID: "b-1"}))
	require.NoError(t, store.UpdatePools(func(tx storage.PoolTx) error {
		for _, p := range []*types.PoolRecord{
			{ID: "p-1", Pool: "gold", Services: []string{"backup", "volume"}},
			{ID: "p-2", Pool: "silver", Services: []string{"volume"}},
			{ID: "p-3", Pool: "old", Services: nil, Deleted: true},
		} {
			if err := tx.PutPool(p); err != nil {
				return err
			}
		}
		return nil
	}))

	resetHealth(t)
	NewCollector(store, 0).Collect()

	assert.Equal(t, 1.0, testutil.ToFloat64(BackendsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(TiersTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(PoolsTotal.WithLabelValues("volume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PoolsTotal.WithLabelValues("backup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(PoolsTotal.WithLabelValues("file")))
}
