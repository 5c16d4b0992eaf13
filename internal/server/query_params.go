package server

import (
	"strconv"
	"strings"
)

// parseLimit returns 0 for an absent limit so services apply their default.
func parseLimit(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	return parsed, nil
}
