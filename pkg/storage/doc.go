/*
Package storage provides BoltDB-backed persistence for the backend catalog and
the pool registry.

All records are serialized as JSON and kept in three buckets of a single
database file, <dataDir>/sdscompose.db:

	backends   Backend ID -> types.Backend (tiers stripped)
	tiers      Tier ID    -> types.Tier
	pools      Pool ID    -> types.PoolRecord (denormalized names stripped)

# Transactions

Catalog operations each run in their own bbolt transaction. Pool records are
written through UpdatePools, which hands the caller a PoolTx bound to one
read-write transaction; everything done inside fn commits or rolls back
together. The registry package relies on this to make every create or delete
pool operation a single atomic registry mutation:

	err := store.UpdatePools(func(tx storage.PoolTx) error {
		pools, err := tx.ListPools()
		if err != nil {
			return err
		}
		// ... merge services, insert new rows
		return tx.PutPool(rec)
	})

# Errors

Missing records are reported with errdefs.ErrNotFound and duplicate catalog
names with errdefs.ErrAlreadyExists, both wrapped with the offending name so
callers can use errors.Is.
*/
package storage
