package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-voss/devcell/protocol"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the runtime (or reuse the live instance)",
	Args:  cobra.NoArgs,
	RunE:  runBoot,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running project, keeping the runtime alive",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down the runtime instance",
	Args:  cobra.NoArgs,
	RunE:  runDestroy,
}

var forceCleanupCmd = &cobra.Command{
	Use:   "force-cleanup",
	Short: "Reset all runtime state and probe for zombie instances",
	Args:  cobra.NoArgs,
	RunE:  runForceCleanup,
}

func init() {
	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(forceCleanupCmd)
}

func runBoot(cmd *cobra.Command, args []string) error {
	var resp struct {
		opResult
		Status protocol.StatusResponse `json:"status"`
	}
	if err := call("POST", "/v1/runtime/boot", nil, &resp); err != nil {
		return err
	}
	printLogs(resp.Logs)
	fmt.Printf("Runtime %s (project %s)\n", resp.Status.Status, resp.Status.ProjectID)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	var resp opResult
	if err := call("POST", "/v1/runtime/stop", nil, &resp); err != nil {
		return err
	}
	printLogs(resp.Logs)
	fmt.Println("Project stopped.")
	return nil
}

func runDestroy(cmd *cobra.Command, args []string) error {
	var resp opResult
	if err := call("DELETE", "/v1/runtime", nil, &resp); err != nil {
		return err
	}
	printLogs(resp.Logs)
	fmt.Println("Runtime destroyed.")
	return nil
}

func runForceCleanup(cmd *cobra.Command, args []string) error {
	var resp struct {
		opResult
		Result protocol.ForceCleanupResponse `json:"result"`
	}
	if err := call("POST", "/v1/runtime/force-cleanup", nil, &resp); err != nil {
		return err
	}
	printLogs(resp.Logs)
	fmt.Println(resp.Result.Message)
	if resp.Result.ZombieDetected {
		return fmt.Errorf("zombie runtime instance detected")
	}
	return nil
}
