// Package registry keeps the durable pool records that tie a pool to the
// backend/tier combinations serving it.
//
// A record is keyed by (pool, backend grouping name, backend, tier) and
// carries a normalized service set. Upsert merges service sets by union;
// ShrinkOrDelete subtracts them and soft-deletes a record whose set becomes
// empty. Each call is one bbolt transaction, so a create or delete pool
// operation commits all of its rows or none of them.
package registry
