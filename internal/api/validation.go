package api

import (
	"fmt"
	"regexp"
)

const maxProjectIDLen = 64

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateProjectID rejects ids that could not have been issued by a
// well-behaved client: empty, oversized, or containing path characters.
func ValidateProjectID(id string) error {
	if id == "" {
		return fmt.Errorf("project id is required")
	}
	if len(id) > maxProjectIDLen {
		return fmt.Errorf("project id exceeds %d characters", maxProjectIDLen)
	}
	if !projectIDPattern.MatchString(id) {
		return fmt.Errorf("project id contains invalid characters")
	}
	return nil
}
