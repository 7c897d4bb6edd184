package compose

import (
	"context"

	"github.com/cuemby/sdscompose/pkg/types"
)

// ListPools returns the active pool records serving any of services
// (default volume). For volume pools the scheduler's placement reported by
// the volume service is merged into each record's section and host lists.
func (o *Orchestrator) ListPools(ctx context.Context, services []types.ServiceKind) ([]*types.PoolRecord, error) {
	kinds, err := normalizeKinds(services)
	if err != nil {
		return nil, err
	}

	rows, err := o.registry.Find(types.PoolFilter{})
	if err != nil {
		return nil, err
	}

	var out []*types.PoolRecord
	for _, r := range rows {
		for _, k := range kinds {
			if r.HasService(k) {
				out = append(out, r)
				break
			}
		}
	}

	if !containsKind(kinds, types.ServiceVolume) || len(out) == 0 {
		return out, nil
	}

	info, err := o.volumes.GetPoolInfo(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Scheduler pool information unavailable, listing recorded pools only")
		return out, nil
	}
	for _, r := range out {
		pi, ok := info[r.Pool]
		if !ok || pi.BackendName != r.BackendName || !r.HasService(types.ServiceVolume) {
			continue
		}
		r.Section = types.MergeList(r.Section, pi.Section)
		r.Host = types.MergeList(r.Host, pi.Host)
		delete(info, r.Pool)
	}
	return out, nil
}

func containsKind(kinds []types.ServiceKind, kind types.ServiceKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
