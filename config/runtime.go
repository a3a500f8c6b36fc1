// Package config resolves the registry's runtime paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStateDir is the registry's state root when BPFREG_STATE_DIR
// is unset.
const DefaultStateDir = "/var/lib/bpfreg"

// Runtime holds the resolved runtime paths.
//
//	{base}/             - state root
//	{base}/db/          - database directory
//
// Runtime is immutable after construction; use NewRuntime.
type Runtime struct {
	base string
	db   string
}

// NewRuntime creates a Runtime rooted at base. Returns an error if
// base is empty or not absolute.
func NewRuntime(base string) (Runtime, error) {
	if base == "" {
		return Runtime{}, fmt.Errorf("base path cannot be empty")
	}
	if !filepath.IsAbs(base) {
		return Runtime{}, fmt.Errorf("base path must be absolute, got %q", base)
	}
	return Runtime{
		base: base,
		db:   filepath.Join(base, "db"),
	}, nil
}

// FromEnv resolves the Runtime from BPFREG_STATE_DIR, falling back
// to DefaultStateDir.
func FromEnv() (Runtime, error) {
	base := os.Getenv("BPFREG_STATE_DIR")
	if base == "" {
		base = DefaultStateDir
	}
	return NewRuntime(base)
}

// Base returns the state root path.
func (r Runtime) Base() string { return r.base }

// DB returns the database directory path.
func (r Runtime) DB() string { return r.db }

// DBPath returns the full path to the SQLite database file.
func (r Runtime) DBPath() string {
	return filepath.Join(r.db, "registry.db")
}

// EnsureDirectories creates the runtime directories. Call at startup
// to fail fast on permission problems. MkdirAll is idempotent.
func (r Runtime) EnsureDirectories() error {
	for _, dir := range []string{r.base, r.db} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
