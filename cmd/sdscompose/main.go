package main

import (
	"fmt"
	"os"

	"github.com/cuemby/sdscompose/pkg/catalog"
	"github.com/cuemby/sdscompose/pkg/compose"
	"github.com/cuemby/sdscompose/pkg/config"
	"github.com/cuemby/sdscompose/pkg/driver"
	"github.com/cuemby/sdscompose/pkg/events"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/cuemby/sdscompose/pkg/metrics"
	"github.com/cuemby/sdscompose/pkg/registry"
	"github.com/cuemby/sdscompose/pkg/remote"
	"github.com/cuemby/sdscompose/pkg/security"
	"github.com/cuemby/sdscompose/pkg/storage"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/cuemby/sdscompose/pkg/volumeservice"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sdscompose",
	Short: "sdscompose - compose storage backend pools across service hosts",
	Long: `sdscompose turns catalog backends and tiers into pools: it writes the
driver's configuration sections into the service configuration file on
every host that runs the service and records the result in a local pool
registry.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var cfg *config.Config

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"sdscompose version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the catalog and registry database")
}

// setup loads the configuration and initializes logging before any command runs
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		loaded.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		loaded.Log.Level = level
	}
	if cmd.Flags().Changed("json-logs") {
		loaded.Log.JSON, _ = cmd.Flags().GetBool("json-logs")
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(loaded.Log.Level),
		JSONOutput: loaded.Log.JSON,
	})
	metrics.SetVersion(Version)

	cfg = loaded
	return nil
}

// app holds the components shared by every command
type app struct {
	store        *storage.BoltStore
	catalog      *catalog.StoreCatalog
	registry     *registry.Registry
	volumes      volumeservice.Client
	events       *events.Broker
	eventSub     events.Subscriber
	orchestrator *compose.Orchestrator
}

// openApp builds the composer from the loaded configuration
func openApp() (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:    store,
		catalog:  catalog.New(store),
		registry: registry.New(store),
		events:   events.NewBroker(),
	}

	if cfg.SecretKeyFile != "" {
		sealer, err := security.LoadSealer(cfg.SecretKeyFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.catalog.WithSealer(sealer)
	}

	if a.volumes, err = newVolumeClient(); err != nil {
		a.Close()
		return nil, err
	}

	transport, err := cfg.NewTransport()
	if err != nil {
		a.Close()
		return nil, err
	}

	targets := make(map[types.ServiceKind]compose.Target, len(cfg.Services))
	for kind, svc := range cfg.Services {
		targets[kind] = compose.Target{
			Binary:     svc.Binary,
			ConfigFile: svc.ConfigFile,
			OSUser:     svc.OSUser,
		}
	}

	a.orchestrator, err = compose.New(compose.Config{
		Catalog:  a.catalog,
		Registry: a.registry,
		Drivers:  driver.Default(cfg.Drivers),
		Volumes:  a.volumes,
		Syncer:   remote.NewSyncer(transport, cfg.SyncerOptions()),
		Events:   a.events,
		Targets:  targets,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.events.Start()
	a.eventSub = a.events.Subscribe()
	go logEvents(a.eventSub)
	return a, nil
}

func newVolumeClient() (volumeservice.Client, error) {
	vs := cfg.VolumeService
	if vs.Endpoint == "" {
		return volumeservice.NewStaticClient(vs.Hosts), nil
	}
	c, err := volumeservice.NewHTTPClient(volumeservice.HTTPConfig{
		Endpoint:      vs.Endpoint,
		Token:         vs.Token,
		Timeout:       vs.Timeout,
		Retries:       vs.Retries,
		RetryInterval: cfg.Retry.InitialInterval,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the database and stops the event broker
func (a *app) Close() {
	if a.eventSub != nil {
		a.events.Unsubscribe(a.eventSub)
	}
	a.events.Stop()
	if err := a.store.Close(); err != nil {
		log.Logger.Error().Err(err).Msg("Failed to close store")
	}
}

// catalogEvent publishes a backend or tier change
func (a *app) catalogEvent(t events.EventType, msg string, metadata map[string]string) {
	a.events.Publish(&events.Event{Type: t, Message: msg, Metadata: metadata})
}

// logEvents writes composer events to the debug log until sub is closed
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		e := logger.Debug().
			Str("event_id", event.ID).
			Str("type", string(event.Type))
		for k, v := range event.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(event.Message)
	}
}
