package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/doghair/pkg/collector"
	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/mesh"
	"github.com/cuemby/doghair/pkg/types"
)

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run a sampling collector",
}

var collectorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a collector on this node",
	Long: `Start a doghair collector.

The collector registers its control address in the mesh registry and
waits for the coordinator to boot it. It exits when the coordinator
sends quit, or on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		nodeID, _ := cmd.Flags().GetString("node-id")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		log.Init(log.Config{Level: logLevel, JSONOutput: logJSON})

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		if nodeID == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return fmt.Errorf("failed to determine node ID: %v", err)
			}
			nodeID = hostname
		}

		registry, err := mesh.NewEtcdRegistry(cfg.EtcdEndpoints, "")
		if err != nil {
			return fmt.Errorf("failed to connect to mesh service: %v", err)
		}
		defer registry.Close()

		c, err := collector.NewCollector(&collector.Config{
			NodeID:     types.PeerID(nodeID),
			ListenAddr: listenAddr,
			DataDir:    dataDir,
			Version:    Version,
			Registrar:  registry,
		})
		if err != nil {
			return fmt.Errorf("failed to create collector: %v", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		fmt.Printf("Collector %s is running. Press Ctrl+C to stop.\n", nodeID)
		if err := c.Serve(ctx); err != nil {
			return fmt.Errorf("collector failed: %v", err)
		}

		fmt.Println("✓ Collector stopped")
		return nil
	},
}

func init() {
	collectorCmd.AddCommand(collectorStartCmd)

	collectorStartCmd.Flags().String("config", "", "Path to YAML config file")
	collectorStartCmd.Flags().String("node-id", "", "Unique node ID (default: hostname)")
	collectorStartCmd.Flags().String("listen-addr", ":7802", "Address for the control channel")
	collectorStartCmd.Flags().String("data-dir", "./doghair-samples", "Directory for local sample files")
	collectorStartCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	collectorStartCmd.Flags().Bool("log-json", false, "Log JSON instead of console output")
}
