/*
Package types defines the data model shared by every sdscompose package.

# Catalog

A Backend is a storage system (a Ceph cluster, an LVM volume group host, ...)
registered under a unique name and handled by a vendor driver named in
Backend.Driver. A Tier is a pool or class of storage inside one backend. The
catalog owns both; the composer only reads them.

# Pool records

A PoolRecord is the durable result of composing a pool: it ties a pool name
(the volume type callers select) and a backend grouping name
(volume_backend_name in cinder.conf terms) to exactly one backend/tier
combination, together with the set of services that use it.

	pool=gold  backend_name=gold_backend  backend=ceph-1  tier=ssd  services=volume

Several records can share a pool and grouping name when the pool spans more
than one tier; each record has its own surrogate ID.

Services is always kept normalized (sorted, deduplicated). Use
NormalizeServices, MergeServices and DropServices rather than editing the
slice directly:

	rec.Services = types.MergeServices(rec.Services, []string{"volume", "backup"})

A record whose service set becomes empty is soft-deleted (Deleted=true) and
disappears from lookups unless PoolFilter.Inactive is set.
*/
package types
