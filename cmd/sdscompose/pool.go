package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/cuemby/sdscompose/pkg/compose"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/spf13/cobra"
)

// Pool commands
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage pools",
}

var poolCreateCmd = &cobra.Command{
	Use:   "create POOL",
	Short: "Create a pool or add services to it",
	Long: `Create a pool from catalog backends and tiers.

The backend's configuration sections are written to the service
configuration file on every host running the service, then one pool
record per backend/tier is stored.

Examples:
  # Volume pool on two tiers of one backend
  sdscompose pool create gold --backend-name gold-be --backend ceph-1=ssd,hdd

  # Every tier of the backend, for volumes and backups
  sdscompose pool create gold --backend-name gold-be --backend ceph-1 --service volume --service backup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := compose.CreateRequest{Pool: args[0]}
		var err error
		if req.BackendName, req.Backends, req.Services, req.Hosts, err = poolFlags(cmd); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Creating pool '%s' (backend name %s)\n", req.Pool, req.BackendName)
		res, err := a.orchestrator.CreatePool(ctx, req)
		if err != nil {
			return describeFailure(err)
		}
		if res.VolumeType != nil {
			fmt.Printf("  Volume type: %s (ID: %s)\n", res.VolumeType.Name, res.VolumeType.ID)
		}
		fmt.Printf("✓ Pool created: %s (%d records)\n", res.Pool, len(res.Records))
		return printPools(res.Records)
	},
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete POOL",
	Short: "Remove services or backends from a pool",
	Long: `Remove services, backends or tiers from a pool.

Without --backend every recorded backend and tier of the pool is
removed. Records left without services are deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := compose.DeleteRequest{Pool: args[0]}
		var err error
		if req.BackendName, req.Backends, req.Services, req.Hosts, err = poolFlags(cmd); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Deleting from pool '%s' (backend name %s)\n", req.Pool, req.BackendName)
		res, err := a.orchestrator.DeletePool(ctx, req)
		if err != nil {
			return describeFailure(err)
		}
		printDeleteResult(res)
		return nil
	},
}

var poolDeleteIDCmd = &cobra.Command{
	Use:   "delete-id ID",
	Short: "Remove the services of one pool record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := a.orchestrator.DeletePoolByID(ctx, args[0])
		if err != nil {
			return describeFailure(err)
		}
		printDeleteResult(res)
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, _ := cmd.Flags().GetStringSlice("service")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		pools, err := a.orchestrator.ListPools(ctx, serviceKinds(services))
		if err != nil {
			return err
		}
		if len(pools) == 0 {
			fmt.Println("No pools found")
			return nil
		}
		return printPools(pools)
	},
}

func init() {
	poolCmd.AddCommand(poolCreateCmd)
	poolCmd.AddCommand(poolDeleteCmd)
	poolCmd.AddCommand(poolDeleteIDCmd)
	poolCmd.AddCommand(poolListCmd)

	for _, cmd := range []*cobra.Command{poolCreateCmd, poolDeleteCmd} {
		cmd.Flags().String("backend-name", "", "Backend grouping name (volume_backend_name)")
		cmd.Flags().StringArray("backend", nil, "Backend to use as NAME or NAME=TIER,TIER (repeatable)")
		cmd.Flags().StringSlice("service", nil, "Service kinds (volume, file, backup, object)")
		cmd.Flags().StringSlice("host", nil, "Target hosts (default: hosts running the service)")
		_ = cmd.MarkFlagRequired("backend-name")
	}
	_ = poolCreateCmd.MarkFlagRequired("backend")

	poolListCmd.Flags().StringSlice("service", nil, "Only pools serving these kinds")

	rootCmd.AddCommand(poolCmd)
}

func poolFlags(cmd *cobra.Command) (string, []compose.BackendRef, []types.ServiceKind, []string, error) {
	backendName, _ := cmd.Flags().GetString("backend-name")
	backends, _ := cmd.Flags().GetStringArray("backend")
	services, _ := cmd.Flags().GetStringSlice("service")
	hosts, _ := cmd.Flags().GetStringSlice("host")

	refs := make([]compose.BackendRef, 0, len(backends))
	for _, b := range backends {
		ref, err := parseBackendRef(b)
		if err != nil {
			return "", nil, nil, nil, err
		}
		refs = append(refs, ref)
	}
	return backendName, refs, serviceKinds(services), hosts, nil
}

// parseBackendRef reads NAME or NAME=TIER,TIER
func parseBackendRef(s string) (compose.BackendRef, error) {
	name, tiers, found := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return compose.BackendRef{}, fmt.Errorf("invalid backend %q: name is required", s)
	}
	ref := compose.BackendRef{Ref: name}
	if !found {
		return ref, nil
	}
	ref.Tiers = types.SplitList(tiers)
	if len(ref.Tiers) == 0 {
		return compose.BackendRef{}, fmt.Errorf("invalid backend %q: no tiers after '='", s)
	}
	return ref, nil
}

func serviceKinds(names []string) []types.ServiceKind {
	var kinds []types.ServiceKind
	for _, n := range names {
		kinds = append(kinds, types.ServiceKind(strings.TrimSpace(n)))
	}
	return kinds
}

// signalContext is cancelled on interrupt so host copies stop between stages
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// describeFailure adds the hosts reached before a batch failure
func describeFailure(err error) error {
	batch, ok := compose.IsRemoteIO(err)
	if !ok || batch == nil {
		return err
	}
	if hosts := batch.SucceededHosts(); len(hosts) > 0 {
		fmt.Fprintf(os.Stderr, "Hosts already rewritten: %s\n", strings.Join(hosts, ", "))
	}
	if host := batch.FailedHost(); host != "" {
		fmt.Fprintf(os.Stderr, "Failed host: %s\n", host)
	}
	return err
}

func printDeleteResult(res *compose.Result) {
	fmt.Printf("✓ Pool updated: %s (%d records changed)\n", res.Pool, len(res.Records))
	if res.TypeDeleted && res.VolumeType != nil {
		fmt.Printf("  Volume type deleted: %s\n", res.VolumeType.Name)
	}
}

func printPools(pools []*types.PoolRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOOL\tBACKEND NAME\tSERVICES\tSYSTEM\tTIER\tSECTION\tHOSTS")
	for _, p := range pools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Pool, p.BackendName, p.ServicesString(),
			dash(p.StorageSystemName), dash(p.StorageTierName), dash(p.Section), dash(p.Host))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
