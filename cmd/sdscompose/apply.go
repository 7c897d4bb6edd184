package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/compose"
	"github.com/cuemby/sdscompose/pkg/events"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest file",
	Long: `Apply backends, tiers and pools from a YAML manifest.

Documents are applied in file order; existing backends and tiers are
left untouched and pools are created idempotently.

Examples:
  # Register a backend with its tiers and compose a pool on it
  sdscompose apply -f gold.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one manifest document
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// BackendSpec is the spec of a Backend document
type BackendSpec struct {
	Driver       string            `yaml:"driver"`
	Capabilities map[string]string `yaml:"capabilities"`
	Config       map[string]string `yaml:"config"`
	Tiers        []TierSpec        `yaml:"tiers"`
}

// TierSpec is the spec of a Tier document, or a tier listed inline on a backend
type TierSpec struct {
	Name         string            `yaml:"name"`
	Backend      string            `yaml:"backend"`
	Capabilities map[string]string `yaml:"capabilities"`
}

// PoolSpec is the spec of a Pool document
type PoolSpec struct {
	BackendName string               `yaml:"backendName"`
	Backends    []compose.BackendRef `yaml:"backends"`
	Services    []types.ServiceKind  `yaml:"services"`
	Hosts       []string             `yaml:"hosts"`
}

// parseManifest decodes every document in r
func parseManifest(r io.Reader) ([]*Resource, error) {
	dec := yaml.NewDecoder(r)
	var resources []*Resource
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind == "" {
			continue
		}
		if res.Metadata.Name == "" {
			return nil, fmt.Errorf("%s document %d: metadata.name is required", res.Kind, len(resources)+1)
		}
		resources = append(resources, &res)
	}
	return resources, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	resources, err := parseManifest(f)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	for _, res := range resources {
		if err := a.apply(ctx, res); err != nil {
			return fmt.Errorf("%s %s: %w", res.Kind, res.Metadata.Name, err)
		}
	}
	return nil
}

func (a *app) apply(ctx context.Context, res *Resource) error {
	switch res.Kind {
	case "Backend":
		var spec BackendSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		return a.applyBackend(res.Metadata.Name, &spec)
	case "Tier":
		var spec TierSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		return a.applyTier(spec.Backend, res.Metadata.Name, spec.Capabilities)
	case "Pool":
		var spec PoolSpec
		if err := res.Spec.Decode(&spec); err != nil {
			return err
		}
		return a.applyPool(ctx, res.Metadata.Name, &spec)
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

func (a *app) applyBackend(name string, spec *BackendSpec) error {
	if spec.Driver == "" {
		return fmt.Errorf("backend driver is required")
	}

	if existing, err := a.catalog.GetBackendByIDOrName(name); err == nil {
		fmt.Printf("Backend already exists: %s (skipping)\n", existing.Name)
	} else if !errdefs.IsNotFound(err) {
		return err
	} else {
		fmt.Printf("Creating backend: %s\n", name)
		backend, err := a.catalog.AddBackend(name, spec.Driver, spec.Capabilities, spec.Config)
		if err != nil {
			return fmt.Errorf("failed to create backend: %w", err)
		}
		a.catalogEvent(events.EventBackendAdded, fmt.Sprintf("Backend %s added", name),
			map[string]string{"backend": name, "backend_id": backend.ID, "driver": backend.Driver})
		fmt.Printf("✓ Backend created: %s (ID: %s)\n", name, backend.ID)
	}

	for _, tier := range spec.Tiers {
		if err := a.applyTier(name, tier.Name, tier.Capabilities); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) applyTier(backendRef, name string, capabilities map[string]string) error {
	if backendRef == "" {
		return fmt.Errorf("tier %s: backend is required", name)
	}
	backend, err := a.catalog.GetBackendByIDOrName(backendRef)
	if err != nil {
		return err
	}
	if backend.FindTier(name) != nil {
		fmt.Printf("Tier already exists: %s/%s (skipping)\n", backend.Name, name)
		return nil
	}

	fmt.Printf("Creating tier: %s/%s\n", backend.Name, name)
	tier, err := a.catalog.AddTier(backend.ID, name, capabilities)
	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}
	a.catalogEvent(events.EventTierAdded, fmt.Sprintf("Tier %s/%s added", backend.Name, name),
		map[string]string{"backend_id": backend.ID, "tier": name, "tier_id": tier.ID})
	fmt.Printf("✓ Tier created: %s/%s (ID: %s)\n", backend.Name, name, tier.ID)
	return nil
}

func (a *app) applyPool(ctx context.Context, name string, spec *PoolSpec) error {
	fmt.Printf("Applying pool: %s\n", name)
	res, err := a.orchestrator.CreatePool(ctx, compose.CreateRequest{
		Pool:        name,
		BackendName: spec.BackendName,
		Backends:    spec.Backends,
		Services:    spec.Services,
		Hosts:       spec.Hosts,
	})
	if err != nil {
		return describeFailure(err)
	}
	fmt.Printf("✓ Pool applied: %s (%d records)\n", name, len(res.Records))
	return nil
}
