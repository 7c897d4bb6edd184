package volumeservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

// StaticClient serves a configured host list and keeps volume types in
// memory. It stands in for the volume service when none is reachable.
type StaticClient struct {
	mu    sync.Mutex
	hosts []string
	types map[string]*VolumeType // by ID
	pools []PoolInfo
}

// NewStaticClient returns a client whose services all run on hosts
func NewStaticClient(hosts []string) *StaticClient {
	return &StaticClient{
		hosts: append([]string(nil), hosts...),
		types: make(map[string]*VolumeType),
	}
}

// SetPools replaces the scheduler pools returned by GetPoolInfo
func (c *StaticClient) SetPools(pools []PoolInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools = append([]PoolInfo(nil), pools...)
}

func (c *StaticClient) ListHosts(ctx context.Context, binary, backendName string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, h := range c.hosts {
		if host, ok := serviceHost(h, backendName); ok {
			seen[host] = struct{}{}
		}
	}
	return sortedHosts(seen), nil
}

func (c *StaticClient) find(ref string) *VolumeType {
	if t, ok := c.types[ref]; ok {
		return t
	}
	for _, t := range c.types {
		if t.Name == ref {
			return t
		}
	}
	return nil
}

func (c *StaticClient) GetVolumeType(ctx context.Context, ref string) (*VolumeType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t := c.find(ref); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("volume type %s: %w", ref, errdefs.ErrNotFound)
}

func (c *StaticClient) CreateBackendType(ctx context.Context, typeName, backendName string) (*VolumeType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t := c.find(typeName); t != nil {
		return t, nil
	}
	t := &VolumeType{
		ID:         uuid.NewString(),
		Name:       typeName,
		ExtraSpecs: map[string]string{BackendNameSpec: backendName},
	}
	c.types[t.ID] = t
	return t, nil
}

func (c *StaticClient) DeleteBackendType(ctx context.Context, typeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[typeID]; !ok {
		return fmt.Errorf("volume type %s: %w", typeID, errdefs.ErrNotFound)
	}
	delete(c.types, typeID)
	return nil
}

func (c *StaticClient) GetPoolInfo(ctx context.Context) (map[string]PoolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]*VolumeType, 0, len(c.types))
	for _, t := range c.types {
		types = append(types, t)
	}
	return poolInfoByType(types, c.pools), nil
}
