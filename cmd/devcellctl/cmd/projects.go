package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-voss/devcell/protocol"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List persisted project states",
	Args:  cobra.NoArgs,
	RunE:  runListProjects,
}

var projectForgetCmd = &cobra.Command{
	Use:   "forget <project-id>",
	Short: "Delete a project's persisted state",
	Args:  cobra.ExactArgs(1),
	RunE:  runForgetProject,
}

func init() {
	projectsCmd.AddCommand(projectForgetCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runListProjects(cmd *cobra.Command, args []string) error {
	var projects []protocol.ProjectStatus
	if err := call("GET", "/v1/projects", nil, &projects); err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Println("No projects recorded.")
		return nil
	}

	fmt.Printf("%-24s %-8s %-6s %s\n", "PROJECT", "STATE", "PORT", "URL")
	for _, p := range projects {
		port := "-"
		if p.Port != 0 {
			port = fmt.Sprintf("%d", p.Port)
		}
		url := p.URL
		if url == "" {
			url = "-"
		}
		fmt.Printf("%-24s %-8s %-6s %s\n", p.ProjectID, p.State, port, url)
	}
	return nil
}

func runForgetProject(cmd *cobra.Command, args []string) error {
	if err := call("DELETE", "/v1/projects/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Printf("Project %s forgotten.\n", args[0])
	return nil
}
