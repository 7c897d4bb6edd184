package compose

import (
	"fmt"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/remote"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/cuemby/sdscompose/pkg/volumeservice"
	"github.com/go-playground/validator/v10"
)

// BackendRef names a catalog backend and some of its tiers, each by id or name
type BackendRef struct {
	Ref   string   `yaml:"name" validate:"required"`
	Tiers []string `yaml:"tiers" validate:"dive,required"`
}

// CreateRequest describes a pool to compose. Backends without tiers use
// every tier the backend has. Services defaults to volume. Hosts, when
// empty, are the hosts currently running each service.
type CreateRequest struct {
	Pool        string              `yaml:"pool" validate:"required"`
	BackendName string              `yaml:"backend_name" validate:"required"`
	Backends    []BackendRef        `yaml:"backends" validate:"required,min=1,dive"`
	Services    []types.ServiceKind `yaml:"services"`
	Hosts       []string            `yaml:"hosts" validate:"dive,required"`
}

// DeleteRequest removes services from a pool. Without Backends every
// recorded backend and tier of the pool is removed; a backend without
// tiers expands to its recorded tiers.
type DeleteRequest struct {
	Pool        string              `yaml:"pool" validate:"required"`
	BackendName string              `yaml:"backend_name" validate:"required"`
	Backends    []BackendRef        `yaml:"backends" validate:"dive"`
	Services    []types.ServiceKind `yaml:"services"`
	Hosts       []string            `yaml:"hosts" validate:"dive,required"`
}

// Result reports the outcome of a pool operation. On a host batch failure
// it is returned together with the error so callers can see which hosts
// were rewritten.
type Result struct {
	Pool        string
	BackendName string
	Records     []*types.PoolRecord
	Batches     map[types.ServiceKind]*remote.BatchResult
	VolumeType  *volumeservice.VolumeType
	TypeDeleted bool
}

// Target is where one service kind keeps its configuration
type Target struct {
	Binary     string
	ConfigFile string
	OSUser     string
}

// binding is one resolved backend/tier combination
type binding struct {
	backend *types.Backend
	tier    *types.Tier
}

func (b binding) key() string {
	return b.backend.ID + "/" + b.tier.ID
}

// servicePlan is everything needed to reconcile one service kind
type servicePlan struct {
	kind    types.ServiceKind
	target  Target
	search  iniconf.Sections
	config  iniconf.Sections
	logical [][]string // Logical section names per binding
	hosts   []string
}

// plan is a validated, resolved pool operation with no side effects yet
type plan struct {
	op          string
	mode        iniconf.Mode
	pool        string
	backendName string
	kinds       []types.ServiceKind
	bindings    []binding
	services    []*servicePlan
}

func (p *plan) serviceNames() []string {
	return types.ServiceNames(p.kinds)
}

func (p *plan) has(kind types.ServiceKind) bool {
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errdefs.ErrInvalidArgument)
}

func validateRequest(v *validator.Validate, req interface{}) error {
	if err := v.Struct(req); err != nil {
		return badRequest("invalid request: %v", err)
	}
	return nil
}

// normalizeKinds dedupes and sorts kinds, defaulting to volume
func normalizeKinds(kinds []types.ServiceKind) ([]types.ServiceKind, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	normalized := types.NormalizeServices(names...)
	if len(normalized) == 0 {
		return []types.ServiceKind{types.ServiceVolume}, nil
	}

	out := make([]types.ServiceKind, 0, len(normalized))
	for _, name := range normalized {
		kind := types.ServiceKind(name)
		known := false
		for _, k := range types.KnownServiceKinds {
			if k == kind {
				known = true
				break
			}
		}
		if !known {
			return nil, badRequest("unknown service %q", name)
		}
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// uniqueHosts drops duplicate hosts keeping the given order
func uniqueHosts(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}
