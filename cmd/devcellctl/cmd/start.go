package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m-voss/devcell/protocol"
)

var startStatic bool

var startCmd = &cobra.Command{
	Use:   "start <project-id>",
	Short: "Install dependencies and start the project's dev server",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startStatic, "static", false, "serve as a static site")
	rootCmd.AddCommand(startCmd)
}

// runStart uses the streaming endpoint so install/start output shows up
// as it happens instead of all at once on completion.
func runStart(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(protocol.StartRequest{Static: startStatic}); err != nil {
		return err
	}

	req, err := http.NewRequest("POST", serverAddr+"/v1/projects/"+projectID+"/start/stream", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
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

	return consumeStartStream(bufio.NewScanner(resp.Body))
}

func consumeStartStream(scanner *bufio.Scanner) error {
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
			case "log":
				var payload struct {
					Line string `json:"line"`
				}
				if json.Unmarshal([]byte(data), &payload) == nil {
					fmt.Println(payload.Line)
				}
			case "done":
				var result protocol.StartResponse
				if err := json.Unmarshal([]byte(data), &result); err != nil {
					return fmt.Errorf("decode result: %w", err)
				}
				fmt.Printf("\nProject %s running at %s\n", result.ProjectID, result.PreviewURL)
				return nil
			case "error":
				var payload struct {
					Error string `json:"error"`
				}
				if json.Unmarshal([]byte(data), &payload) == nil {
					return fmt.Errorf("%s", payload.Error)
				}
				return fmt.Errorf("start failed: %s", data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without a result")
}
