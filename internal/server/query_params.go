package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parsePageSize returns 0 for an absent size so the service applies its
// default.
func parsePageSize(value string) (int, error) {
	size, err := parseOptionalInt(value)
	if err != nil {
		return 0, err
	}
	if size == nil {
		return 0, nil
	}
	if *size < 0 {
		return 0, strconv.ErrRange
	}
	return *size, nil
}
