package volumeservice

import (
	"context"
	"sort"
	"strings"
)

// DefaultBinary is the service binary whose hosts receive volume backend sections
const DefaultBinary = "cinder-volume"

// BackendNameSpec is the volume type extra spec naming the backend grouping
const BackendNameSpec = "volume_backend_name"

// VolumeType is a selectable pool as the volume service knows it
type VolumeType struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ExtraSpecs map[string]string `json:"extra_specs"`
}

// BackendName returns the volume_backend_name extra spec, or ""
func (t *VolumeType) BackendName() string {
	if t == nil {
		return ""
	}
	return t.ExtraSpecs[BackendNameSpec]
}

// PoolInfo is the scheduler's view of where a pool lives
type PoolInfo struct {
	Host        string
	Section     string
	BackendName string
}

// Client talks to the volume service that consumes the rewritten files
type Client interface {
	// ListHosts returns the hosts running binary. When backendName is set
	// only hosts already serving that backend section are returned.
	ListHosts(ctx context.Context, binary, backendName string) ([]string, error)

	// CreateBackendType creates the volume type typeName bound to
	// backendName unless a type with that name already exists.
	CreateBackendType(ctx context.Context, typeName, backendName string) (*VolumeType, error)

	// GetVolumeType finds a type by name or id
	GetVolumeType(ctx context.Context, ref string) (*VolumeType, error)

	DeleteBackendType(ctx context.Context, typeID string) error

	// GetPoolInfo maps volume type names to scheduler pool placement
	GetPoolInfo(ctx context.Context) (map[string]PoolInfo, error)
}

// serviceHost splits "host@section" and reports whether it serves backendName
func serviceHost(full, backendName string) (string, bool) {
	host, section, hasSection := strings.Cut(full, "@")
	if backendName == "" {
		return host, true
	}
	return host, hasSection && section == backendName
}

// parsePoolName splits a scheduler pool name "host@section#backend"
func parsePoolName(name string) (PoolInfo, bool) {
	host, rest, ok := strings.Cut(name, "@")
	if !ok {
		return PoolInfo{}, false
	}
	section, backend, ok := strings.Cut(rest, "#")
	if !ok || strings.ContainsAny(backend, "@#") {
		return PoolInfo{}, false
	}
	return PoolInfo{Host: host, Section: section, BackendName: backend}, true
}

// poolInfoByType keys scheduler pools by the volume types bound to their backend
func poolInfoByType(types []*VolumeType, pools []PoolInfo) map[string]PoolInfo {
	out := make(map[string]PoolInfo)
	for _, p := range pools {
		for _, t := range types {
			if t.BackendName() != "" && t.BackendName() == p.BackendName {
				out[t.Name] = p
			}
		}
	}
	return out
}

func sortedHosts(seen map[string]struct{}) []string {
	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
