package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/cuemby/sdscompose/pkg/storage"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Error is a persistence failure while reading or committing pool records
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Delta is the change to one backend/tier combination of a pool
type Delta struct {
	Pool        string
	BackendName string
	BackendID   string
	TierID      string
	Services    []string
	Sections    []string // Resolved on-disk section names
	Hosts       []string // Hosts the sections were written to
}

func (d Delta) matches(p *types.PoolRecord) bool {
	return !p.Deleted &&
		p.Pool == d.Pool &&
		p.BackendName == d.BackendName &&
		p.BackendID == d.BackendID &&
		p.TierID == d.TierID
}

// Registry keeps pool records and their service sets
type Registry struct {
	store  storage.Store
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// New creates a registry over store
func New(store storage.Store) *Registry {
	return &Registry{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.WithComponent("registry"),
	}
}

// Find returns the records matching filter, possibly none. Backend and tier
// names are attached for presentation.
func (r *Registry) Find(filter types.PoolFilter) ([]*types.PoolRecord, error) {
	var found []*types.PoolRecord
	err := r.store.ViewPools(func(tx storage.PoolTx) error {
		pools, err := tx.ListPools()
		if err != nil {
			return err
		}
		for _, p := range pools {
			if filter.Matches(p) {
				found = append(found, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "find", Err: err}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Pool != found[j].Pool {
			return found[i].Pool < found[j].Pool
		}
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.Before(found[j].CreatedAt)
		}
		return found[i].ID < found[j].ID
	})

	r.attachNames(found)
	return found, nil
}

// Lookup is Find that fails with errdefs.ErrNotFound when a non-empty
// filter matches nothing
func (r *Registry) Lookup(filter types.PoolFilter) ([]*types.PoolRecord, error) {
	found, err := r.Find(filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && !filter.IsEmpty() {
		return nil, fmt.Errorf("pool %s: %w", describe(filter), errdefs.ErrNotFound)
	}
	return found, nil
}

// Exists reports whether any record matches filter
func (r *Registry) Exists(filter types.PoolFilter) (bool, error) {
	found, err := r.Find(filter)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Upsert merges each delta into the record for its pool, grouping name,
// backend and tier, or inserts a new record. All deltas commit in one
// transaction.
func (r *Registry) Upsert(deltas []Delta) ([]*types.PoolRecord, error) {
	var out []*types.PoolRecord
	now := r.now()

	err := r.store.UpdatePools(func(tx storage.PoolTx) error {
		pools, err := tx.ListPools()
		if err != nil {
			return err
		}

		for _, d := range deltas {
			rec := findRecord(pools, d)
			if rec == nil {
				rec = &types.PoolRecord{
					ID:          r.newID(),
					Pool:        d.Pool,
					BackendName: d.BackendName,
					BackendID:   d.BackendID,
					TierID:      d.TierID,
					CreatedAt:   now,
				}
				pools = append(pools, rec)
			}

			rec.Services = types.MergeServices(rec.Services, d.Services)
			rec.Section = types.MergeList(rec.Section, d.Sections...)
			rec.Host = types.MergeList(rec.Host, d.Hosts...)
			rec.UpdatedAt = now

			if err := tx.PutPool(rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "upsert", Err: err}
	}

	r.attachNames(out)
	return out, nil
}

// ShrinkOrDelete removes each delta's services from its record. A record
// left without services is soft-deleted. Deltas without a record are
// ignored. All deltas commit in one transaction.
func (r *Registry) ShrinkOrDelete(deltas []Delta) ([]*types.PoolRecord, error) {
	var out []*types.PoolRecord
	now := r.now()

	err := r.store.UpdatePools(func(tx storage.PoolTx) error {
		pools, err := tx.ListPools()
		if err != nil {
			return err
		}

		for _, d := range deltas {
			rec := findRecord(pools, d)
			if rec == nil {
				r.logger.Debug().
					Str("pool", d.Pool).
					Str("backend_id", d.BackendID).
					Str("tier_id", d.TierID).
					Msg("No pool record to shrink")
				continue
			}

			rec.Services = types.DropServices(rec.Services, d.Services)
			rec.UpdatedAt = now
			if len(rec.Services) == 0 {
				rec.Deleted = true
				rec.DeletedAt = now
			}

			if err := tx.PutPool(rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "shrink", Err: err}
	}
	return out, nil
}

func findRecord(pools []*types.PoolRecord, d Delta) *types.PoolRecord {
	for _, p := range pools {
		if d.matches(p) {
			return p
		}
	}
	return nil
}

// attachNames fills the denormalized backend and tier names
func (r *Registry) attachNames(pools []*types.PoolRecord) {
	backends := make(map[string]string)
	tiers := make(map[string]string)

	for _, p := range pools {
		if p.BackendID != "" {
			name, ok := backends[p.BackendID]
			if !ok {
				if b, err := r.store.GetBackend(p.BackendID); err == nil {
					name = b.Name
				} else if !errors.Is(err, errdefs.ErrNotFound) {
					r.logger.Warn().Err(err).Str("backend_id", p.BackendID).Msg("Failed to resolve backend name")
				}
				backends[p.BackendID] = name
			}
			p.StorageSystemName = name
		}
		if p.TierID != "" {
			name, ok := tiers[p.TierID]
			if !ok {
				if t, err := r.store.GetTier(p.TierID); err == nil {
					name = t.Name
				} else if !errors.Is(err, errdefs.ErrNotFound) {
					r.logger.Warn().Err(err).Str("tier_id", p.TierID).Msg("Failed to resolve tier name")
				}
				tiers[p.TierID] = name
			}
			p.StorageTierName = name
		}
	}
}

func describe(f types.PoolFilter) string {
	var parts []string
	for _, kv := range [][2]string{
		{"id", f.ID},
		{"pool", f.Pool},
		{"backend_name", f.BackendName},
		{"backend_id", f.BackendID},
		{"tier_id", f.TierID},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	return strings.Join(parts, " ")
}
