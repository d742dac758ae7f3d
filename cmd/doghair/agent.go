package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/coordinator"
	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/mesh"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/storage"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the doghair coordinator",
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator on this node",
	Long: `Start the doghair coordinator.

The coordinator waits for the cluster to mesh, distributes the collector
code check to every registered node, boots one collector per node, and
then serves operator commands on the admin address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		adminAddr, _ := cmd.Flags().GetString("admin-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		hostname, _ := cmd.Flags().GetString("hostname")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		log.Init(log.Config{Level: logLevel, JSONOutput: logJSON})
		metrics.SetVersion(Version)

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}

		registry, err := mesh.NewEtcdRegistry(cfg.EtcdEndpoints, "")
		if err != nil {
			return fmt.Errorf("failed to connect to mesh service: %v", err)
		}
		defer registry.Close()

		ledger, err := storage.NewBoltLedger(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open pull ledger: %v", err)
		}
		defer ledger.Close()

		// Readiness gates on the mesh probe, the state core, and the
		// pull ledger
		metrics.RegisterComponent("mesh", true)
		metrics.RegisterComponent("coordinator", true)
		metrics.RegisterComponent("ledger", true)
		metrics.SetHealthy("ledger", "open")

		broker := events.NewBroker()
		defer broker.Close()

		coord, err := coordinator.NewCoordinator(&coordinator.Config{
			Version:  Version,
			Agent:    cfg,
			Registry: registry,
			Ledger:   ledger,
			Broker:   broker,
			Hostname: hostname,
		})
		if err != nil {
			return fmt.Errorf("failed to create coordinator: %v", err)
		}

		// Mirror coordinator events into the agent log
		eventCh, cancelEvents := broker.Subscribe(64)
		defer cancelEvents()
		go func() {
			logger := log.WithComponent("events")
			for event := range eventCh {
				logger.Debug().
					Str("type", string(event.Type)).
					Str("node", string(event.Node)).
					Str("cycle", event.Cycle).
					Str("file", event.File).
					Str("detail", event.Detail).
					Msg("coordinator event")
			}
		}()

		admin := coordinator.NewAdminServer(coord)
		if err := admin.Start(adminAddr); err != nil {
			return fmt.Errorf("failed to start admin server: %v", err)
		}
		defer admin.Stop()

		startMetricsServer(metricsAddr)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- coord.Run(ctx)
		}()

		fmt.Println("Coordinator is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			select {
			case <-coord.Shutdown():
			case <-time.After(30 * time.Second):
				fmt.Fprintln(os.Stderr, "Warning: shutdown timed out")
			}
			cancel()
			<-errCh
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("coordinator failed: %v", err)
			}
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	agentCmd.AddCommand(agentStartCmd)

	agentStartCmd.Flags().String("config", "", "Path to YAML config file")
	agentStartCmd.Flags().String("admin-addr", "127.0.0.1:7801", "Address for the admin channel")
	agentStartCmd.Flags().String("metrics-addr", "127.0.0.1:9641", "Address for metrics and health endpoints")
	agentStartCmd.Flags().String("data-dir", "./doghair-data", "Data directory for the pull ledger")
	agentStartCmd.Flags().String("hostname", "", "Reachable hostname announced to collectors (default: OS hostname)")
	agentStartCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	agentStartCmd.Flags().Bool("log-json", false, "Log JSON instead of console output")
}

// startMetricsServer serves /metrics plus the health endpoints in the
// background.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("metrics").Error().Err(err).Msg("metrics server failed")
		}
	}()
}
