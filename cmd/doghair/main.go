package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/doghair/pkg/client"
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
	Use:   "doghair",
	Short: "Doghair - cluster-wide sampling agent",
	Long: `Doghair orchestrates one sampling collector per cluster node from a
single coordinator: it boots the collectors, drives them through a shared
collect lifecycle, reboots them when they crash, and pulls their
accumulated sample files back over point-to-point TCP transfers.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Doghair version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Add subcommands
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(collectorCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(shutdownCmd)
}

// Operator commands: thin dispatchers over the coordinator's admin
// channel.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Control the collection run",
}

var collectStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start collecting on all nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.StartCollect(); err != nil {
				return err
			}
			fmt.Println("✓ start_collect submitted")
			return nil
		})
	},
}

var collectStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop collecting on all nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.StopCollect(); err != nil {
				return err
			}
			fmt.Println("✓ stop_collect submitted")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			report, err := c.Status()
			if err != nil {
				return err
			}

			fmt.Println("Coordinator status:")
			fmt.Printf("  Collectors: %d\n", len(report.Collectors))
			for _, node := range report.Collectors {
				fmt.Printf("    - %s\n", node)
			}
			fmt.Printf("  Collecting: %v\n", report.Collecting)
			fmt.Printf("  Started:    %s\n", report.StartClctTime)
			fmt.Printf("  Stopped:    %s\n", report.EndClctTime)
			fmt.Printf("  Config:     interval=%dms topn=%d smp=%v\n",
				report.Config.Interval, report.Config.TopN, report.Config.SMP)
			if report.LastCycle != nil {
				fmt.Printf("  Last pull:  %s (%d/%d files, completed=%v)\n",
					report.LastCycle.Repo, report.LastCycle.Transferred,
					report.LastCycle.Expected, report.LastCycle.Completed)
			}
			return nil
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull sample files from all nodes into a fresh repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.Pull(); err != nil {
				return err
			}
			fmt.Println("✓ pull submitted")
			return nil
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the coordinator and all collectors down",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.Shutdown(); err != nil {
				return err
			}
			fmt.Println("✓ shutdown submitted")
			return nil
		})
	},
}

func init() {
	collectCmd.AddCommand(collectStartCmd)
	collectCmd.AddCommand(collectStopCmd)

	for _, cmd := range []*cobra.Command{collectStartCmd, collectStopCmd, statusCmd, pullCmd, shutdownCmd} {
		cmd.Flags().String("admin-addr", "127.0.0.1:7801", "Coordinator admin address")
	}
}

func withClient(cmd *cobra.Command, fn func(*client.Client) error) error {
	addr, _ := cmd.Flags().GetString("admin-addr")
	c, err := client.NewClient(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
