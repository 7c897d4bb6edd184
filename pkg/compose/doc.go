/*
Package compose implements the pool create and delete workflows.

A pool is a named volume type backed by one or more backend/tier
combinations from the catalog. Composing it runs these steps, in order:

  - validate the request and resolve every backend and tier by id or name
  - ask the driver of each backend for the search criteria and full
    entries of its sections, once per backend/tier combination
  - pick the target hosts, asking the volume service when none are given
  - ensure (create) or look up (delete) the pool's volume type
  - rewrite the service configuration file on every host through
    remote.Syncer
  - commit the pool records in one registry transaction

Validation, resolution and driver errors are reported before any host or
volume type is touched. A failed host batch returns the partial Result and
a *remote.BatchError; nothing is recorded in the registry for it, and hosts
already rewritten keep their new file (the original is kept next to it as
<path>.orig.<uuid>).

	res, err := orch.CreatePool(ctx, compose.CreateRequest{
		Pool:        "gold",
		BackendName: "gold_backend",
		Backends:    []compose.BackendRef{{Ref: "ceph-1", Tiers: []string{"ssd"}}},
	})
	if batch, ok := compose.IsRemoteIO(err); ok {
		fmt.Println("rewritten before failure:", batch.SucceededHosts())
	}
*/
package compose
