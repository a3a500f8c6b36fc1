// Package store defines the persistence interface for the registry
// and the sentinel errors its implementations report.
package store

import (
	"context"
	"errors"

	"github.com/frobware/bpfreg"
)

// Sentinel errors. Implementations wrap these with %w together with
// the underlying engine error, so callers can classify with
// errors.Is while keeping full diagnostics. Any engine error that is
// none of these is propagated unchanged (a storage failure).
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an
	// existing primary key.
	ErrConflict = errors.New("conflict")
	// ErrForeignKey is returned when an operation references a
	// Program or Map that does not exist.
	ErrForeignKey = errors.New("foreign key violation")
)

// Store is the repository over the four registry relations.
//
// Individual methods are single bounded statements (plus timestamp
// maintenance) and execute in autocommit mode unless the Store was
// obtained inside RunInTransaction. The multi-step attach workflows
// are the only operations requiring atomicity and wrap themselves in
// a transaction; everything else relies on the engine's row-level
// guarantees.
//
// Create methods set created_at = updated_at = now and fail with
// ErrConflict when the caller-supplied identifier already exists.
// Update methods refresh updated_at and write the caller's full
// desired state. Upsert methods keep last-write-wins semantics with
// created_at preserved, because the kernel recycles identifiers
// aggressively after unload.
type Store interface {
	// Programs.
	CreateProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error)
	UpsertProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error)
	GetProgram(ctx context.Context, id uint64) (bpfreg.Program, error)
	ListPrograms(ctx context.Context) ([]bpfreg.Program, error)
	UpdateProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error)
	DeleteProgram(ctx context.Context, id uint64) (bool, error)
	DeleteAllPrograms(ctx context.Context) (int64, error)

	// Links.
	CreateLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error)
	UpsertLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error)
	GetLink(ctx context.Context, id uint64) (bpfreg.Link, error)
	ListLinks(ctx context.Context) ([]bpfreg.Link, error)
	ListLinksByProgram(ctx context.Context, programID uint64) ([]bpfreg.Link, error)
	UpdateLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error)
	DeleteLink(ctx context.Context, id uint64) (bool, error)
	DeleteAllLinks(ctx context.Context) (int64, error)

	// Maps.
	CreateMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error)
	UpsertMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error)
	GetMap(ctx context.Context, id uint64) (bpfreg.Map, error)
	ListMaps(ctx context.Context) ([]bpfreg.Map, error)
	UpdateMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error)
	DeleteMap(ctx context.Context, id uint64) (bool, error)
	DeleteAllMaps(ctx context.Context) (int64, error)

	// Program-map associations.
	CreateProgramMap(ctx context.Context, programID, mapID uint64) error
	ListProgramMaps(ctx context.Context) ([]bpfreg.ProgramMap, error)
	ListProgramMapsByProgram(ctx context.Context, programID uint64) ([]bpfreg.ProgramMap, error)

	// AttachLink atomically inserts the link with state attached,
	// transitions the program to attached and persists it. On any
	// failure nothing is retained.
	AttachLink(ctx context.Context, programID uint64, l bpfreg.Link) (bpfreg.Link, error)

	// AttachMap atomically inserts the map and the bridging
	// program-map row. Same all-or-nothing discipline.
	AttachMap(ctx context.Context, programID uint64, m bpfreg.Map) (bpfreg.Map, error)

	// RunInTransaction executes fn against a transaction-scoped
	// Store. The transaction commits only if fn returns nil;
	// otherwise every change is rolled back and fn's error is
	// returned unchanged.
	RunInTransaction(ctx context.Context, fn func(Store) error) error

	Close() error
}
