package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/catalog"
	"github.com/cuemby/sdscompose/pkg/driver"
	"github.com/cuemby/sdscompose/pkg/events"
	"github.com/cuemby/sdscompose/pkg/iniconf"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/cuemby/sdscompose/pkg/metrics"
	"github.com/cuemby/sdscompose/pkg/registry"
	"github.com/cuemby/sdscompose/pkg/remote"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/cuemby/sdscompose/pkg/volumeservice"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	opCreate = "create"
	opDelete = "delete"
)

// Config holds the collaborators of an Orchestrator
type Config struct {
	Catalog  catalog.Catalog
	Registry *registry.Registry
	Drivers  *driver.Registry
	Volumes  volumeservice.Client
	Syncer   *remote.Syncer
	Events   *events.Broker // Optional
	Targets  map[types.ServiceKind]Target
}

// Orchestrator composes pools: it resolves backends and tiers, asks their
// drivers for configuration sections, rewrites the configuration file on
// every target host and records the result in the pool registry.
type Orchestrator struct {
	catalog  catalog.Catalog
	registry *registry.Registry
	drivers  *driver.Registry
	volumes  volumeservice.Client
	syncer   *remote.Syncer
	events   *events.Broker
	targets  map[types.ServiceKind]Target
	validate *validator.Validate
	logger   zerolog.Logger
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("compose: catalog is required")
	case cfg.Registry == nil:
		return nil, errors.New("compose: registry is required")
	case cfg.Drivers == nil:
		return nil, errors.New("compose: driver registry is required")
	case cfg.Volumes == nil:
		return nil, errors.New("compose: volume service client is required")
	case cfg.Syncer == nil:
		return nil, errors.New("compose: syncer is required")
	}

	return &Orchestrator{
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		drivers:  cfg.Drivers,
		volumes:  cfg.Volumes,
		syncer:   cfg.Syncer,
		events:   cfg.Events,
		targets:  cfg.Targets,
		validate: validator.New(),
		logger:   log.WithComponent("compose"),
	}, nil
}

// CreatePool writes the pool's backend sections to every target host and
// records one pool record per backend/tier combination. Nothing is
// recorded unless every host was rewritten.
func (o *Orchestrator) CreatePool(ctx context.Context, req CreateRequest) (*Result, error) {
	timer := metrics.NewTimer()
	res, err := o.createPool(ctx, req)
	o.finish(opCreate, req.Pool, req.BackendName, timer, res, err)
	return res, err
}

func (o *Orchestrator) createPool(ctx context.Context, req CreateRequest) (*Result, error) {
	if err := validateRequest(o.validate, req); err != nil {
		return nil, err
	}
	logger := log.WithPool(req.Pool, req.BackendName)
	logger.Debug().Interface("backends", req.Backends).Msg("Creating pool")

	p, err := o.newPlan(opCreate, req.Pool, req.BackendName, req.Services)
	if err != nil {
		return nil, err
	}
	if p.bindings, err = o.resolve(req.Backends, nil); err != nil {
		return nil, err
	}
	if err := o.dispatch(p); err != nil {
		return nil, err
	}
	if err := o.resolveHosts(ctx, p, req.Hosts); err != nil {
		return nil, err
	}

	res := &Result{Pool: p.pool, BackendName: p.backendName}
	if p.has(types.ServiceVolume) {
		vt, err := o.volumes.CreateBackendType(ctx, p.pool, p.backendName)
		if err != nil {
			return nil, fmt.Errorf("create volume type %s: %w", p.pool, err)
		}
		res.VolumeType = vt
		o.publish(events.EventVolumeTypeCreated, fmt.Sprintf("Volume type %s bound to %s", p.pool, p.backendName), p, nil)
	}

	if err := o.reconcile(ctx, p, res); err != nil {
		return res, err
	}

	res.Records, err = o.registry.Upsert(o.deltas(p, res))
	if err != nil {
		logger.Error().Err(err).Msg("Hosts rewritten but pool records not saved")
		return res, err
	}

	o.publish(events.EventPoolCreated, fmt.Sprintf("Pool %s created", p.pool), p, nil)
	logger.Info().
		Strs("services", p.serviceNames()).
		Int("records", len(res.Records)).
		Msg("Pool created")
	return res, nil
}

// DeletePool removes the pool's sections from every target host and drops
// the requested services from its records. Records left without services
// are deleted. The pool's volume type is removed once no record uses it.
func (o *Orchestrator) DeletePool(ctx context.Context, req DeleteRequest) (*Result, error) {
	timer := metrics.NewTimer()
	res, err := o.deletePool(ctx, req)
	o.finish(opDelete, req.Pool, req.BackendName, timer, res, err)
	return res, err
}

// DeletePoolByID deletes the services of one pool record, as DeletePool
// would for its pool, backend and tier
func (o *Orchestrator) DeletePoolByID(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, badRequest("pool id required")
	}
	rows, err := o.registry.Lookup(types.PoolFilter{ID: id})
	if err != nil {
		return nil, err
	}
	row := rows[0]

	backend := BackendRef{Ref: row.BackendID}
	if row.TierID != "" {
		backend.Tiers = []string{row.TierID}
	}
	services := make([]types.ServiceKind, 0, len(row.Services))
	for _, s := range row.Services {
		services = append(services, types.ServiceKind(s))
	}

	return o.DeletePool(ctx, DeleteRequest{
		Pool:        row.Pool,
		BackendName: row.BackendName,
		Backends:    []BackendRef{backend},
		Services:    services,
	})
}

func (o *Orchestrator) deletePool(ctx context.Context, req DeleteRequest) (*Result, error) {
	if err := validateRequest(o.validate, req); err != nil {
		return nil, err
	}
	logger := log.WithPool(req.Pool, req.BackendName)

	p, err := o.newPlan(opDelete, req.Pool, req.BackendName, req.Services)
	if err != nil {
		return nil, err
	}

	// Only pools this composer created can be deleted
	rows, err := o.registry.Lookup(types.PoolFilter{Pool: req.Pool, BackendName: req.BackendName})
	if err != nil {
		return nil, err
	}

	refs := req.Backends
	if len(refs) == 0 {
		refs = refsFromRows(rows)
	}
	if p.bindings, err = o.resolve(refs, rows); err != nil {
		return nil, err
	}
	if err := o.dispatch(p); err != nil {
		return nil, err
	}
	if err := o.resolveHosts(ctx, p, req.Hosts); err != nil {
		return nil, err
	}

	res := &Result{Pool: p.pool, BackendName: p.backendName}
	if p.has(types.ServiceVolume) {
		vt, err := o.volumes.GetVolumeType(ctx, p.pool)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Volume type not found, it will not be removed")
		case vt.BackendName() == "":
			logger.Warn().Str("type_id", vt.ID).Msg("Volume type has no backend name, it will not be removed")
		default:
			res.VolumeType = vt
		}
	}

	if err := o.reconcile(ctx, p, res); err != nil {
		return res, err
	}

	res.Records, err = o.registry.ShrinkOrDelete(o.deltas(p, res))
	if err != nil {
		logger.Error().Err(err).Msg("Hosts rewritten but pool records not updated")
		return res, err
	}

	if res.VolumeType != nil {
		res.TypeDeleted = o.cleanupVolumeType(ctx, p, res.VolumeType, logger)
	}

	o.publish(events.EventPoolDeleted, fmt.Sprintf("Pool %s deleted", p.pool), p, nil)
	logger.Info().
		Strs("services", p.serviceNames()).
		Int("records", len(res.Records)).
		Bool("type_deleted", res.TypeDeleted).
		Msg("Pool deleted")
	return res, nil
}

// cleanupVolumeType deletes the pool's volume type when no active record
// still serves volumes. Failures are logged only.
func (o *Orchestrator) cleanupVolumeType(ctx context.Context, p *plan, vt *volumeservice.VolumeType, logger zerolog.Logger) bool {
	remaining, err := o.registry.Find(types.PoolFilter{Pool: p.pool})
	if err != nil {
		logger.Warn().Err(err).Msg("Cannot check remaining pool records, keeping volume type")
		return false
	}
	for _, r := range remaining {
		if r.HasService(types.ServiceVolume) {
			return false
		}
	}

	if err := o.volumes.DeleteBackendType(ctx, vt.ID); err != nil {
		logger.Warn().Err(err).Str("type_id", vt.ID).Msg("Failed to delete volume type")
		return false
	}
	o.publish(events.EventVolumeTypeDeleted, fmt.Sprintf("Volume type %s deleted", vt.Name), p, nil)
	return true
}

func (o *Orchestrator) newPlan(op, pool, backendName string, services []types.ServiceKind) (*plan, error) {
	kinds, err := normalizeKinds(services)
	if err != nil {
		return nil, err
	}
	for _, kind := range kinds {
		if _, ok := o.targets[kind]; !ok {
			return nil, badRequest("no configuration target for service %s", kind)
		}
	}

	mode := iniconf.ModeUpdate
	if op == opDelete {
		mode = iniconf.ModeDelete
	}
	return &plan{
		op:          op,
		mode:        mode,
		pool:        pool,
		backendName: backendName,
		kinds:       kinds,
	}, nil
}

// refsFromRows rebuilds backend references from pool records
func refsFromRows(rows []*types.PoolRecord) []BackendRef {
	var refs []BackendRef
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.BackendID]
		if !ok {
			i = len(refs)
			index[r.BackendID] = i
			refs = append(refs, BackendRef{Ref: r.BackendID})
		}
		if r.TierID != "" {
			refs[i].Tiers = append(refs[i].Tiers, r.TierID)
		}
	}
	return refs
}

// resolve looks up every backend and tier in the catalog. A reference
// without tiers means every catalog tier of the backend on create, and
// every recorded tier on delete (rows non-nil).
func (o *Orchestrator) resolve(refs []BackendRef, rows []*types.PoolRecord) ([]binding, error) {
	var bindings []binding
	seen := make(map[string]bool)

	for _, ref := range refs {
		backend, err := o.catalog.GetBackendByIDOrName(ref.Ref)
		if err != nil {
			return nil, fmt.Errorf("resolve backend %s: %w", ref.Ref, err)
		}

		tierRefs := ref.Tiers
		if len(tierRefs) == 0 {
			if rows != nil {
				for _, r := range rows {
					if r.BackendID == backend.ID && r.TierID != "" {
						tierRefs = append(tierRefs, r.TierID)
					}
				}
				if len(tierRefs) == 0 {
					return nil, fmt.Errorf("backend %s has no tiers recorded for this pool: %w", backend.Name, errdefs.ErrNotFound)
				}
			} else {
				for _, t := range backend.Tiers {
					tierRefs = append(tierRefs, t.ID)
				}
				if len(tierRefs) == 0 {
					return nil, badRequest("backend %s has no tiers", backend.Name)
				}
			}
		}

		for _, tierRef := range tierRefs {
			tier, err := o.resolveTier(backend, tierRef)
			if err != nil {
				return nil, err
			}
			b := binding{backend: backend, tier: tier}
			if seen[b.key()] {
				continue
			}
			seen[b.key()] = true
			bindings = append(bindings, b)
		}
	}
	return bindings, nil
}

// resolveTier finds tierRef among the backend's tiers. A qualified
// "backend/tier" reference, or one the backend does not know by name or id,
// goes through the catalog and must land on this backend.
func (o *Orchestrator) resolveTier(backend *types.Backend, tierRef string) (*types.Tier, error) {
	if !strings.Contains(tierRef, "/") {
		if tier := backend.FindTier(tierRef); tier != nil {
			return tier, nil
		}
	}

	found, err := o.catalog.GetTierByIDOrName(tierRef)
	if err != nil {
		return nil, fmt.Errorf("tier %s on backend %s: %w", tierRef, backend.Name, err)
	}
	if found.BackendID != backend.ID {
		return nil, badRequest("tier %s belongs to another backend than %s", tierRef, backend.Name)
	}
	tier := backend.FindTier(found.ID)
	if tier == nil {
		return nil, fmt.Errorf("tier %s on backend %s: %w", tierRef, backend.Name, errdefs.ErrNotFound)
	}
	return tier, nil
}

// dispatch asks each backend's driver for the sections of every binding
func (o *Orchestrator) dispatch(p *plan) error {
	for _, kind := range p.kinds {
		sp := &servicePlan{
			kind:    kind,
			target:  o.targets[kind],
			search:  make(iniconf.Sections),
			config:  make(iniconf.Sections),
			logical: make([][]string, len(p.bindings)),
		}

		for i, b := range p.bindings {
			d, err := o.drivers.ForBackend(b.backend)
			if err != nil {
				return err
			}

			single := *b.backend
			single.Tiers = []*types.Tier{b.tier}
			search, config, err := d.GetConfigSections(kind, p.pool, p.backendName, &single)
			if err != nil {
				return fmt.Errorf("driver %s for backend %s tier %s: %w", d.Name(), b.backend.Name, b.tier.Name, err)
			}
			if len(config) == 0 {
				return fmt.Errorf("driver %s returned no sections for backend %s tier %s: %w",
					d.Name(), b.backend.Name, b.tier.Name, driver.ErrDriverMapping)
			}
			for id := range search {
				if _, ok := config[id]; !ok {
					return fmt.Errorf("driver %s search section %s has no configuration: %w", d.Name(), id, driver.ErrDriverMapping)
				}
			}

			for _, id := range config.Names() {
				if _, dup := sp.config[id]; dup {
					return badRequest("section %s is produced by more than one backend/tier", id)
				}
			}
			sp.search.Merge(search)
			sp.config.Merge(config)
			sp.logical[i] = config.Names()
		}
		p.services = append(p.services, sp)
	}
	return nil
}

// resolveHosts fixes the host list of every service. Without explicit
// hosts the volume service is asked for the hosts running each binary.
func (o *Orchestrator) resolveHosts(ctx context.Context, p *plan, hosts []string) error {
	for _, sp := range p.services {
		if len(hosts) > 0 {
			sp.hosts = uniqueHosts(hosts)
			continue
		}
		found, err := o.volumes.ListHosts(ctx, sp.target.Binary, "")
		if err != nil {
			return fmt.Errorf("list hosts running %s: %w", sp.target.Binary, err)
		}
		if len(found) == 0 {
			return fmt.Errorf("no hosts running %s: %w", sp.target.Binary, errdefs.ErrFailedPrecondition)
		}
		sp.hosts = found
	}
	return nil
}

// reconcile rewrites the configuration file of every service on its hosts
func (o *Orchestrator) reconcile(ctx context.Context, p *plan, res *Result) error {
	res.Batches = make(map[types.ServiceKind]*remote.BatchResult, len(p.services))
	for _, sp := range p.services {
		batch, err := o.syncer.ReconcileBatch(ctx, sp.hosts, remote.Request{
			Path:   sp.target.ConfigFile,
			User:   sp.target.OSUser,
			Search: sp.search,
			Update: sp.config,
			Mode:   p.mode,
		})
		res.Batches[sp.kind] = batch

		if batch != nil {
			for _, hr := range batch.Succeeded {
				o.publish(events.EventHostReconciled, fmt.Sprintf("%s updated on %s", sp.target.ConfigFile, hr.Host), p,
					map[string]string{"host": hr.Host, "service": string(sp.kind), "backup": hr.BackupPath})
			}
			for _, f := range batch.Failed {
				o.publish(events.EventHostFailed, fmt.Sprintf("%s not updated on %s: %v", sp.target.ConfigFile, f.Host, f.Err), p,
					map[string]string{"host": f.Host, "service": string(sp.kind)})
			}
		}
		if err != nil {
			return fmt.Errorf("%s %s configuration: %w", p.op, sp.kind, err)
		}
	}
	return nil
}

// deltas builds one registry change per binding. Section names are the
// names actually used on disk, hosts are the hosts that were rewritten.
func (o *Orchestrator) deltas(p *plan, res *Result) []registry.Delta {
	deltas := make([]registry.Delta, 0, len(p.bindings))
	for i, b := range p.bindings {
		d := registry.Delta{
			Pool:        p.pool,
			BackendName: p.backendName,
			BackendID:   b.backend.ID,
			TierID:      b.tier.ID,
			Services:    p.serviceNames(),
		}
		if p.op == opCreate {
			for _, sp := range p.services {
				batch := res.Batches[sp.kind]
				if batch == nil {
					continue
				}
				for _, hr := range batch.Succeeded {
					for _, logical := range sp.logical[i] {
						name := logical
						if renamed, ok := hr.Renames[logical]; ok {
							name = renamed
						}
						d.Sections = appendUnique(d.Sections, name)
					}
					d.Hosts = appendUnique(d.Hosts, hr.Host)
				}
			}
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func appendUnique(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

func (o *Orchestrator) finish(op, pool, backendName string, timer *metrics.Timer, res *Result, err error) {
	timer.ObserveDurationVec(metrics.PoolOperationDuration, op)
	status := "success"
	if err != nil {
		status = "failed"
		o.logger.Error().
			Err(err).
			Str("operation", op).
			Str("pool", pool).
			Str("backend_name", backendName).
			Msg("Pool operation failed")
		o.events.Publish(&events.Event{
			Type:    events.EventPoolFailed,
			Message: fmt.Sprintf("%s pool %s failed: %v", op, pool, err),
			Metadata: map[string]string{
				"operation":    op,
				"pool":         pool,
				"backend_name": backendName,
			},
		})
	}
	metrics.PoolOperationsTotal.WithLabelValues(op, status).Inc()
}

func (o *Orchestrator) publish(t events.EventType, msg string, p *plan, extra map[string]string) {
	meta := map[string]string{
		"pool":         p.pool,
		"backend_name": p.backendName,
		"services":     strings.Join(p.serviceNames(), ","),
	}
	for k, v := range extra {
		meta[k] = v
	}
	o.events.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}
