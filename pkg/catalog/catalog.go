// Package catalog resolves storage backends and tiers by id or name.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/security"
	"github.com/cuemby/sdscompose/pkg/storage"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/google/uuid"
)

// Catalog is the read side used by the orchestrator
type Catalog interface {
	GetBackendByIDOrName(ref string) (*types.Backend, error)
	GetTierByIDOrName(ref string) (*types.Tier, error)
}

// StoreCatalog is a Catalog backed by the bbolt store
type StoreCatalog struct {
	store  storage.Store
	sealer *security.Sealer
	now    func() time.Time
}

// New creates a catalog over store
func New(store storage.Store) *StoreCatalog {
	return &StoreCatalog{store: store, now: time.Now}
}

// WithSealer stores sensitive backend config specs encrypted
func (c *StoreCatalog) WithSealer(sealer *security.Sealer) *StoreCatalog {
	c.sealer = sealer
	return c
}

// open decrypts sealed specs and attaches tiers
func (c *StoreCatalog) open(backend *types.Backend) error {
	if c.sealer != nil {
		specs, err := c.sealer.OpenSpecs(backend.ConfigSpecs)
		if err != nil {
			return fmt.Errorf("backend %s: %w", backend.Name, err)
		}
		backend.ConfigSpecs = specs
	}

	var err error
	backend.Tiers, err = c.store.ListTiersByBackend(backend.ID)
	return err
}

// looksLikeID reports whether ref parses as a UUID
func looksLikeID(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

// GetBackendByIDOrName resolves ref as an id when it looks like a UUID,
// otherwise (or when no backend has that id) as a name. Tiers are attached.
func (c *StoreCatalog) GetBackendByIDOrName(ref string) (*types.Backend, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty backend reference: %w", errdefs.ErrInvalidArgument)
	}

	var backend *types.Backend
	var err error
	if looksLikeID(ref) {
		backend, err = c.store.GetBackend(ref)
		if errors.Is(err, errdefs.ErrNotFound) {
			backend, err = c.store.GetBackendByName(ref)
		}
	} else {
		backend, err = c.store.GetBackendByName(ref)
	}
	if err != nil {
		return nil, err
	}

	if err := c.open(backend); err != nil {
		return nil, err
	}
	return backend, nil
}

// GetTierByIDOrName resolves a tier. A plain name must be unique across
// backends; "backend/tier" selects a tier of one backend.
func (c *StoreCatalog) GetTierByIDOrName(ref string) (*types.Tier, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty tier reference: %w", errdefs.ErrInvalidArgument)
	}

	if looksLikeID(ref) {
		tier, err := c.store.GetTier(ref)
		if err == nil || !errors.Is(err, errdefs.ErrNotFound) {
			return tier, err
		}
	}

	if backendRef, tierRef, ok := strings.Cut(ref, "/"); ok {
		backend, err := c.GetBackendByIDOrName(backendRef)
		if err != nil {
			return nil, err
		}
		if tier := backend.FindTier(tierRef); tier != nil {
			return tier, nil
		}
		return nil, fmt.Errorf("tier %s: %w", ref, errdefs.ErrNotFound)
	}

	tiers, err := c.store.ListTiers()
	if err != nil {
		return nil, err
	}
	var match *types.Tier
	for _, tier := range tiers {
		if tier.Name != ref {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("tier name %s is used by several backends, qualify it as backend/tier: %w", ref, errdefs.ErrInvalidArgument)
		}
		match = tier
	}
	if match == nil {
		return nil, fmt.Errorf("tier %s: %w", ref, errdefs.ErrNotFound)
	}
	return match, nil
}

// AddBackend registers a backend under a fresh id
func (c *StoreCatalog) AddBackend(name, driver string, capabilitySpecs, configSpecs map[string]string) (*types.Backend, error) {
	if name == "" {
		return nil, fmt.Errorf("backend name required: %w", errdefs.ErrInvalidArgument)
	}
	if _, err := c.store.GetBackendByName(name); err == nil {
		return nil, fmt.Errorf("backend %s: %w", name, errdefs.ErrAlreadyExists)
	}

	now := c.now()
	backend := &types.Backend{
		ID:              uuid.NewString(),
		Name:            name,
		Driver:          driver,
		CapabilitySpecs: capabilitySpecs,
		ConfigSpecs:     configSpecs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	stored := *backend
	if c.sealer != nil {
		var err error
		if stored.ConfigSpecs, err = c.sealer.SealSpecs(configSpecs); err != nil {
			return nil, err
		}
	}
	if err := c.store.CreateBackend(&stored); err != nil {
		return nil, err
	}
	return backend, nil
}

// AddTier registers a tier on the backend named or identified by backendRef
func (c *StoreCatalog) AddTier(backendRef, name string, capabilitySpecs map[string]string) (*types.Tier, error) {
	if name == "" {
		return nil, fmt.Errorf("tier name required: %w", errdefs.ErrInvalidArgument)
	}
	backend, err := c.GetBackendByIDOrName(backendRef)
	if err != nil {
		return nil, err
	}
	if backend.FindTier(name) != nil {
		return nil, fmt.Errorf("tier %s on backend %s: %w", name, backend.Name, errdefs.ErrAlreadyExists)
	}

	now := c.now()
	tier := &types.Tier{
		ID:              uuid.NewString(),
		Name:            name,
		BackendID:       backend.ID,
		CapabilitySpecs: capabilitySpecs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.CreateTier(tier); err != nil {
		return nil, err
	}
	return tier, nil
}

// ListBackends returns every backend with its tiers
func (c *StoreCatalog) ListBackends() ([]*types.Backend, error) {
	backends, err := c.store.ListBackends()
	if err != nil {
		return nil, err
	}
	for _, b := range backends {
		if err := c.open(b); err != nil {
			return nil, err
		}
	}
	return backends, nil
}

// RemoveBackend deletes a backend and its tiers
func (c *StoreCatalog) RemoveBackend(ref string) error {
	backend, err := c.GetBackendByIDOrName(ref)
	if err != nil {
		return err
	}
	return c.store.DeleteBackend(backend.ID)
}
