package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open the runtime's interactive shell and stream its output",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest("POST", serverAddr+"/v1/runtime/shell", nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"error_code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	return consumeShellStream(bufio.NewScanner(resp.Body))
}

// consumeShellStream prints shell output chunks verbatim; the terminal
// interprets the control sequences the pty passes through.
func consumeShellStream(scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "chunk":
				var payload struct {
					Chunk string `json:"chunk"`
				}
				if json.Unmarshal([]byte(data), &payload) == nil {
					fmt.Print(payload.Chunk)
				}
			case "done":
				var payload struct {
					ExitCode int `json:"exit_code"`
				}
				if json.Unmarshal([]byte(data), &payload) == nil && payload.ExitCode != 0 {
					return fmt.Errorf("shell exited with code %d", payload.ExitCode)
				}
				return nil
			case "error":
				var payload struct {
					Error string `json:"error"`
				}
				if json.Unmarshal([]byte(data), &payload) == nil {
					return fmt.Errorf("%s", payload.Error)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("shell stream ended without an exit code")
}
