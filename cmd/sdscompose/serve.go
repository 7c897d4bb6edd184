package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/sdscompose/pkg/api"
	"github.com/cuemby/sdscompose/pkg/log"
	"github.com/cuemby/sdscompose/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health and metrics endpoints",
	Long: `Serve /health, /ready, /live and /metrics for the composer.

The collector refreshes catalog and registry gauges and probes the
registry and the volume service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.MetricsAddr
		}
		interval, _ := cmd.Flags().GetDuration("interval")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		metrics.RegisterProbe("registry", func() error {
			_, err := a.store.ListPools()
			return err
		})
		metrics.RegisterProbe("volume-service", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := a.volumes.GetPoolInfo(ctx)
			return err
		})

		collector := metrics.NewCollector(a.store, interval)
		collector.Start()
		defer collector.Stop()

		server := api.NewHealthServer(a.store, Version)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(addr); err != nil {
				errCh <- fmt.Errorf("health server error: %w", err)
			}
		}()

		log.Logger.Info().Str("addr", addr).Msg("Serving health and metrics")

		ctx, stop := signalContext()
		defer stop()

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown: %w", err)
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: metrics_addr from config)")
	serveCmd.Flags().Duration("interval", metrics.DefaultCollectInterval, "Collector refresh interval")

	rootCmd.AddCommand(serveCmd)
}
