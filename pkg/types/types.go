package types

import (
	"strings"
	"time"
	"unicode"

	"github.com/juju/collections/set"
)

// ServiceKind identifies the consumer of a pool (block volumes, shares, backups, objects)
type ServiceKind string

const (
	ServiceVolume ServiceKind = "volume"
	ServiceFile   ServiceKind = "file"
	ServiceBackup ServiceKind = "backup"
	ServiceObject ServiceKind = "object"
)

// KnownServiceKinds lists every service kind a pool can be created for
var KnownServiceKinds = []ServiceKind{ServiceVolume, ServiceFile, ServiceBackup, ServiceObject}

// Backend is a storage system registered in the catalog
type Backend struct {
	ID              string
	Name            string
	Driver          string            // Vendor driver name (e.g. "ceph")
	CapabilitySpecs map[string]string // Discovered capabilities
	ConfigSpecs     map[string]string // Connection details (fsid, user, ...)
	Tiers           []*Tier           // Populated on lookup, not persisted with the backend
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tier is a pool or class of storage inside a backend
type Tier struct {
	ID              string
	Name            string
	BackendID       string
	CapabilitySpecs map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FindTier returns the backend tier whose name or id equals ref
func (b *Backend) FindTier(ref string) *Tier {
	for _, t := range b.Tiers {
		if t.Name == ref || t.ID == ref {
			return t
		}
	}
	return nil
}

// PoolRecord links a pool to one backend/tier combination and the services using it
type PoolRecord struct {
	ID          string
	Pool        string
	BackendName string   // Backend grouping name (volume_backend_name)
	Services    []string // Normalized: sorted, deduplicated
	BackendID   string
	TierID      string

	// Host-local section names and the hosts they were written to,
	// comma-joined sets.
	Section string
	Host    string

	// Denormalized catalog names, attached on lookup only
	StorageSystemName string `json:",omitempty"`
	StorageTierName   string `json:",omitempty"`

	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt time.Time
}

// ServicesString renders the service set the way it is presented to callers
func (p *PoolRecord) ServicesString() string {
	return strings.Join(p.Services, ",")
}

// HasService reports whether the record serves the given kind
func (p *PoolRecord) HasService(kind ServiceKind) bool {
	for _, s := range p.Services {
		if s == string(kind) {
			return true
		}
	}
	return false
}

// PoolFilter selects pool records. Empty fields match anything.
type PoolFilter struct {
	ID          string
	Pool        string
	BackendName string
	BackendID   string
	TierID      string
	Inactive    bool // Include soft-deleted records
}

// IsEmpty reports whether the filter has no criteria
func (f PoolFilter) IsEmpty() bool {
	return f.ID == "" && f.Pool == "" && f.BackendName == "" && f.BackendID == "" && f.TierID == ""
}

// Matches reports whether the record satisfies every non-empty criterion
func (f PoolFilter) Matches(p *PoolRecord) bool {
	if p.Deleted && !f.Inactive {
		return false
	}
	if f.ID != "" && f.ID != p.ID {
		return false
	}
	if f.Pool != "" && f.Pool != p.Pool {
		return false
	}
	if f.BackendName != "" && f.BackendName != p.BackendName {
		return false
	}
	if f.BackendID != "" && f.BackendID != p.BackendID {
		return false
	}
	if f.TierID != "" && f.TierID != p.TierID {
		return false
	}
	return true
}

// SplitList splits a comma/whitespace separated list, dropping empty items
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// MergeList unions the comma-joined cur with more items, keeping first-seen
// order. Each added item may itself be a comma-joined list.
func MergeList(cur string, add ...string) string {
	seen := set.NewStrings()
	var out []string
	for _, item := range append([]string{cur}, add...) {
		for _, v := range SplitList(item) {
			if seen.Contains(v) {
				continue
			}
			seen.Add(v)
			out = append(out, v)
		}
	}
	return strings.Join(out, ",")
}

// NormalizeServices returns the sorted, deduplicated set of service names.
// Items may themselves be comma-joined lists.
func NormalizeServices(items ...string) []string {
	s := set.NewStrings()
	for _, item := range items {
		for _, name := range SplitList(item) {
			s.Add(name)
		}
	}
	return s.SortedValues()
}

// MergeServices returns the union of cur and add
func MergeServices(cur, add []string) []string {
	return set.NewStrings(NormalizeServices(cur...)...).
		Union(set.NewStrings(NormalizeServices(add...)...)).
		SortedValues()
}

// DropServices returns cur without the services in drop
func DropServices(cur, drop []string) []string {
	return set.NewStrings(NormalizeServices(cur...)...).
		Difference(set.NewStrings(NormalizeServices(drop...)...)).
		SortedValues()
}

// ServiceNames converts kinds to their string form
func ServiceNames(kinds []ServiceKind) []string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}
