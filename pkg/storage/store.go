package storage

import (
	"github.com/cuemby/sdscompose/pkg/types"
)

// Store defines the interface for catalog and pool registry storage
// This is implemented by BoltDB-backed storage
type Store interface {
	// Backends
	CreateBackend(backend *types.Backend) error
	GetBackend(id string) (*types.Backend, error)
	GetBackendByName(name string) (*types.Backend, error)
	ListBackends() ([]*types.Backend, error)
	UpdateBackend(backend *types.Backend) error
	DeleteBackend(id string) error

	// Tiers
	CreateTier(tier *types.Tier) error
	GetTier(id string) (*types.Tier, error)
	ListTiers() ([]*types.Tier, error)
	ListTiersByBackend(backendID string) ([]*types.Tier, error)
	DeleteTier(id string) error

	// Pools
	GetPool(id string) (*types.PoolRecord, error)
	ListPools() ([]*types.PoolRecord, error)

	// ViewPools and UpdatePools run fn inside a single transaction
	ViewPools(fn func(tx PoolTx) error) error
	UpdatePools(fn func(tx PoolTx) error) error

	// Utility
	Close() error
}

// PoolTx is the pool bucket as seen from inside one transaction
type PoolTx interface {
	ListPools() ([]*types.PoolRecord, error)
	PutPool(pool *types.PoolRecord) error
	DeletePool(id string) error
}
