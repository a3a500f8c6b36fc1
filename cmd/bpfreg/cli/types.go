// Package cli provides the Kong-based command-line interface for
// bpfreg.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RegistryID wraps a uint64 registry identifier with hex support.
type RegistryID struct {
	Value uint64
}

// ParseRegistryID parses an identifier from string, supporting a hex
// (0x) prefix.
func ParseRegistryID(s string) (RegistryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RegistryID{}, fmt.Errorf("identifier cannot be empty")
	}

	var val uint64
	var err error

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		val, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		val, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return RegistryID{}, fmt.Errorf("invalid identifier %q: %w", s, err)
	}

	return RegistryID{Value: val}, nil
}

// DBPath wraps a path to the SQLite database with tilde expansion.
type DBPath struct {
	Path string
}

// ParseDBPath parses a database path with tilde expansion.
func ParseDBPath(s string) (DBPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DBPath{}, fmt.Errorf("database path cannot be empty")
	}

	if strings.HasPrefix(s, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return DBPath{}, fmt.Errorf("cannot expand ~: %w", err)
		}
		s = home + s[1:]
	}

	return DBPath{Path: s}, nil
}
