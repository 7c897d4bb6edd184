package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketBackends = []byte("backends")
	bucketTiers    = []byte("tiers")
	bucketPools    = []byte("pools")
)

// DBFileName is the database file created inside the data directory
const DBFileName = "sdscompose.db"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketBackends,
			bucketTiers,
			bucketPools,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(id), data)
}

func get(tx *bolt.Tx, bucket []byte, id string, v interface{}) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(id))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// Backend operations
func (s *BoltStore) CreateBackend(backend *types.Backend) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		// Names are unique across the catalog
		err := tx.Bucket(bucketBackends).ForEach(func(k, v []byte) error {
			var existing types.Backend
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == backend.Name && existing.ID != backend.ID {
				return fmt.Errorf("backend %s: %w", backend.Name, errdefs.ErrAlreadyExists)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Tiers are stored in their own bucket
		stored := *backend
		stored.Tiers = nil
		return put(tx, bucketBackends, backend.ID, &stored)
	})
}

func (s *BoltStore) GetBackend(id string) (*types.Backend, error) {
	var backend types.Backend
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketBackends, id, &backend)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("backend %s: %w", id, errdefs.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &backend, nil
}

func (s *BoltStore) GetBackendByName(name string) (*types.Backend, error) {
	var found *types.Backend
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackends)
		return b.ForEach(func(k, v []byte) error {
			var backend types.Backend
			if err := json.Unmarshal(v, &backend); err != nil {
				return err
			}
			if backend.Name == name {
				found = &backend
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("backend %s: %w", name, errdefs.ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListBackends() ([]*types.Backend, error) {
	var backends []*types.Backend
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackends)
		return b.ForEach(func(k, v []byte) error {
			var backend types.Backend
			if err := json.Unmarshal(v, &backend); err != nil {
				return err
			}
			backends = append(backends, &backend)
			return nil
		})
	})
	return backends, err
}

func (s *BoltStore) UpdateBackend(backend *types.Backend) error {
	return s.CreateBackend(backend) // Same as create (upsert)
}

// DeleteBackend removes the backend and its tiers
func (s *BoltStore) DeleteBackend(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tiers := tx.Bucket(bucketTiers)
		var drop [][]byte
		err := tiers.ForEach(func(k, v []byte) error {
			var tier types.Tier
			if err := json.Unmarshal(v, &tier); err != nil {
				return err
			}
			if tier.BackendID == id {
				drop = append(drop, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range drop {
			if err := tiers.Delete(k); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketBackends).Delete([]byte(id))
	})
}

// Tier operations
func (s *BoltStore) CreateTier(tier *types.Tier) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var backend types.Backend
		found, err := get(tx, bucketBackends, tier.BackendID, &backend)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("backend %s: %w", tier.BackendID, errdefs.ErrNotFound)
		}

		// Tier names are unique within a backend
		err = tx.Bucket(bucketTiers).ForEach(func(k, v []byte) error {
			var existing types.Tier
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.BackendID == tier.BackendID && existing.Name == tier.Name && existing.ID != tier.ID {
				return fmt.Errorf("tier %s on backend %s: %w", tier.Name, backend.Name, errdefs.ErrAlreadyExists)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return put(tx, bucketTiers, tier.ID, tier)
	})
}

func (s *BoltStore) GetTier(id string) (*types.Tier, error) {
	var tier types.Tier
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketTiers, id, &tier)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("tier %s: %w", id, errdefs.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *BoltStore) ListTiers() ([]*types.Tier, error) {
	var tiers []*types.Tier
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTiers)
		return b.ForEach(func(k, v []byte) error {
			var tier types.Tier
			if err := json.Unmarshal(v, &tier); err != nil {
				return err
			}
			tiers = append(tiers, &tier)
			return nil
		})
	})
	return tiers, err
}

func (s *BoltStore) ListTiersByBackend(backendID string) ([]*types.Tier, error) {
	tiers, err := s.ListTiers()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Tier
	for _, tier := range tiers {
		if tier.BackendID == backendID {
			filtered = append(filtered, tier)
		}
	}
	return filtered, nil
}

func (s *BoltStore) DeleteTier(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTiers)
		return b.Delete([]byte(id))
	})
}

// Pool operations
func (s *BoltStore) GetPool(id string) (*types.PoolRecord, error) {
	var pool types.PoolRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx, bucketPools, id, &pool)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("pool %s: %w", id, errdefs.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *BoltStore) ListPools() ([]*types.PoolRecord, error) {
	var pools []*types.PoolRecord
	err := s.ViewPools(func(tx PoolTx) error {
		var err error
		pools, err = tx.ListPools()
		return err
	})
	return pools, err
}

func (s *BoltStore) ViewPools(fn func(tx PoolTx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltPoolTx{tx: tx})
	})
}

func (s *BoltStore) UpdatePools(fn func(tx PoolTx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltPoolTx{tx: tx})
	})
}

// boltPoolTx implements PoolTx over an open bolt transaction
type boltPoolTx struct {
	tx *bolt.Tx
}

func (t *boltPoolTx) ListPools() ([]*types.PoolRecord, error) {
	var pools []*types.PoolRecord
	err := t.tx.Bucket(bucketPools).ForEach(func(k, v []byte) error {
		var pool types.PoolRecord
		if err := json.Unmarshal(v, &pool); err != nil {
			return err
		}
		pools = append(pools, &pool)
		return nil
	})
	return pools, err
}

func (t *boltPoolTx) PutPool(pool *types.PoolRecord) error {
	stored := *pool
	stored.StorageSystemName = ""
	stored.StorageTierName = ""
	return put(t.tx, bucketPools, pool.ID, &stored)
}

func (t *boltPoolTx) DeletePool(id string) error {
	return t.tx.Bucket(bucketPools).Delete([]byte(id))
}
