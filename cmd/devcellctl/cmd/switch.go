package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/m-voss/devcell/protocol"
)

var switchCmd = &cobra.Command{
	Use:   "switch <project-id> <dir>",
	Short: "Mount a local project directory onto the runtime",
	Args:  cobra.ExactArgs(2),
	RunE:  runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

// Directories that never belong in a mounted tree.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
}

func runSwitch(cmd *cobra.Command, args []string) error {
	projectID, dir := args[0], args[1]

	tree, err := readTree(dir)
	if err != nil {
		return err
	}
	if len(tree) == 0 {
		return fmt.Errorf("directory %s contains no mountable files", dir)
	}

	var resp struct {
		opResult
		Status protocol.StatusResponse `json:"status"`
	}
	err = call("POST", "/v1/projects/"+projectID+"/switch", protocol.SwitchRequest{Files: tree}, &resp)
	if err != nil {
		return err
	}
	printLogs(resp.Logs)
	fmt.Printf("Project %s mounted.\n", projectID)
	return nil
}

func readTree(dir string) (protocol.FileTree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	tree := protocol.FileTree{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if skipDirs[name] {
				continue
			}
			children, err := readTree(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			tree[name] = protocol.FileNode{Children: children}
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		tree[name] = protocol.FileNode{Contents: string(data)}
	}
	return tree, nil
}
