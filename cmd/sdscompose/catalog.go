package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cuemby/sdscompose/pkg/events"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/spf13/cobra"
)

// Backend commands
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage catalog backends",
}

var backendAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a storage backend",
	Long: `Register a storage backend in the catalog.

Examples:
  sdscompose backend add ceph-1 --driver ceph --config-spec fsid=0b7c...,user=cinder`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driverName, _ := cmd.Flags().GetString("driver")
		capabilities, _ := cmd.Flags().GetStringToString("capability")
		configSpecs, _ := cmd.Flags().GetStringToString("config-spec")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		backend, err := a.catalog.AddBackend(args[0], driverName, capabilities, configSpecs)
		if err != nil {
			return fmt.Errorf("failed to add backend: %w", err)
		}
		a.catalogEvent(events.EventBackendAdded, fmt.Sprintf("Backend %s added", backend.Name),
			map[string]string{"backend": backend.Name, "backend_id": backend.ID, "driver": backend.Driver})
		fmt.Printf("✓ Backend added: %s (ID: %s)\n", backend.Name, backend.ID)
		return nil
	},
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		backends, err := a.catalog.ListBackends()
		if err != nil {
			return err
		}
		if len(backends) == 0 {
			fmt.Println("No backends found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDRIVER\tTIERS\tCONFIG")
		for _, b := range backends {
			tiers := make([]string, 0, len(b.Tiers))
			for _, t := range b.Tiers {
				tiers = append(tiers, t.Name)
			}
			sort.Strings(tiers)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				b.ID, b.Name, dash(b.Driver), dash(strings.Join(tiers, ",")), dash(specString(b.ConfigSpecs)))
		}
		return w.Flush()
	},
}

var backendRemoveCmd = &cobra.Command{
	Use:   "remove NAME|ID",
	Short: "Remove a backend and its tiers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.catalog.RemoveBackend(args[0]); err != nil {
			return fmt.Errorf("failed to remove backend: %w", err)
		}
		a.catalogEvent(events.EventBackendRemoved, fmt.Sprintf("Backend %s removed", args[0]),
			map[string]string{"backend": args[0]})
		fmt.Printf("✓ Backend removed: %s\n", args[0])
		return nil
	},
}

// Tier commands
var tierCmd = &cobra.Command{
	Use:   "tier",
	Short: "Manage backend tiers",
}

var tierAddCmd = &cobra.Command{
	Use:   "add BACKEND NAME",
	Short: "Register a tier on a backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		capabilities, _ := cmd.Flags().GetStringToString("capability")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		tier, err := a.catalog.AddTier(args[0], args[1], capabilities)
		if err != nil {
			return fmt.Errorf("failed to add tier: %w", err)
		}
		a.catalogEvent(events.EventTierAdded, fmt.Sprintf("Tier %s/%s added", args[0], tier.Name),
			map[string]string{"backend_id": tier.BackendID, "tier": tier.Name, "tier_id": tier.ID})
		fmt.Printf("✓ Tier added: %s/%s (ID: %s)\n", args[0], tier.Name, tier.ID)
		return nil
	},
}

var tierListCmd = &cobra.Command{
	Use:   "list [BACKEND]",
	Short: "List tiers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var backends []*types.Backend
		if len(args) == 1 {
			backend, err := a.catalog.GetBackendByIDOrName(args[0])
			if err != nil {
				return err
			}
			backends = append(backends, backend)
		} else if backends, err = a.catalog.ListBackends(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBACKEND\tNAME\tCAPABILITIES")
		for _, b := range backends {
			for _, t := range b.Tiers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, b.Name, t.Name, dash(specString(t.CapabilitySpecs)))
			}
		}
		return w.Flush()
	},
}

func init() {
	backendCmd.AddCommand(backendAddCmd)
	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendRemoveCmd)

	backendAddCmd.Flags().String("driver", "", "Vendor driver (ceph, lvm)")
	backendAddCmd.Flags().StringToString("capability", nil, "Capability specs as key=value")
	backendAddCmd.Flags().StringToString("config-spec", nil, "Connection specs as key=value")
	_ = backendAddCmd.MarkFlagRequired("driver")

	tierCmd.AddCommand(tierAddCmd)
	tierCmd.AddCommand(tierListCmd)

	tierAddCmd.Flags().StringToString("capability", nil, "Capability specs as key=value")

	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(tierCmd)
}

// specString renders specs as sorted key=value pairs
func specString(specs map[string]string) string {
	pairs := make([]string, 0, len(specs))
	for k, v := range specs {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
