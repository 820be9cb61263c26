package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-voss/devcell/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current runtime session",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show controller diagnostics counters",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st protocol.StatusResponse
	if err := call("GET", "/v1/runtime", nil, &st); err != nil {
		return err
	}

	if !st.Exists {
		fmt.Println("No runtime session.")
		return nil
	}

	fmt.Printf("Project: %s\n", st.ProjectID)
	fmt.Printf("Status:  %s\n", st.Status)
	if st.Port != 0 {
		fmt.Printf("Port:    %d\n", st.Port)
		fmt.Printf("Preview: %s\n", st.PreviewURL)
	}
	fmt.Printf("Created: %s\n", st.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	var st protocol.StatsResponse
	if err := call("GET", "/v1/runtime/stats", nil, &st); err != nil {
		return err
	}

	fmt.Printf("Boots:           %d\n", st.BootCount)
	fmt.Printf("Reuses:          %d\n", st.ReuseCount)
	fmt.Printf("Tracked procs:   %d\n", st.TrackedProcs)
	fmt.Printf("Boot in flight:  %v\n", st.BootInFlight)
	fmt.Printf("Global slot:     %v\n", st.GlobalSlotHeld)
	return nil
}
