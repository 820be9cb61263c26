package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// opResult is the common envelope of daemon operation responses.
type opResult struct {
	Logs []string `json:"logs"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}

// call performs a JSON request against the daemon and decodes the
// response into out (when out is non-nil).
func call(method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, serverAddr+path, &buf)
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

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"error_code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func printLogs(logs []string) {
	for _, line := range logs {
		fmt.Println(line)
	}
}
