package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/frobware/bpfreg"
	"github.com/frobware/bpfreg/store"
	"github.com/frobware/bpfreg/uintblob"
)

func scanMap(sc rowScanner) (bpfreg.Map, error) {
	var id uintblob.U64
	var name string
	var mapType sql.NullString
	var keySize, valueSize, maxEntries sql.NullInt64
	var createdAtStr, updatedAtStr string

	err := sc.Scan(&id, &name, &mapType, &keySize, &valueSize, &maxEntries, &createdAtStr, &updatedAtStr)
	if err != nil {
		return bpfreg.Map{}, err
	}

	createdAt, err := time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return bpfreg.Map{}, fmt.Errorf("invalid created_at timestamp %q: %w", createdAtStr, err)
	}
	updatedAt, err := time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return bpfreg.Map{}, fmt.Errorf("invalid updated_at timestamp %q: %w", updatedAtStr, err)
	}

	return bpfreg.Map{
		ID:         id.Get(),
		Name:       name,
		MapType:    mapType.String,
		KeySize:    int32Ptr(keySize),
		ValueSize:  int32Ptr(valueSize),
		MaxEntries: int32Ptr(maxEntries),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// CreateMap inserts a new map row. A duplicate identifier fails with
// store.ErrConflict.
func (s *sqliteStore) CreateMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error) {
	t := now()
	m.CreatedAt, m.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtCreateMap.ExecContext(ctx,
		uintblob.New(m.ID),
		m.Name,
		nullString(m.MapType),
		nullInt32(m.KeySize),
		nullInt32(m.ValueSize),
		nullInt32(m.MaxEntries),
		m.CreatedAt.Format(timeFormat),
		m.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "CreateMap", "args", []any{m.ID, m.Name}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Map{}, fmt.Errorf("insert map %d: %w", m.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "CreateMap", "args", []any{m.ID, m.Name}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)
	return m, nil
}

// UpsertMap stores a map using last-write-wins semantics, preserving
// created_at across identifier reuse.
func (s *sqliteStore) UpsertMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error) {
	t := now()
	m.CreatedAt, m.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtUpsertMap.ExecContext(ctx,
		uintblob.New(m.ID),
		m.Name,
		nullString(m.MapType),
		nullInt32(m.KeySize),
		nullInt32(m.ValueSize),
		nullInt32(m.MaxEntries),
		m.CreatedAt.Format(timeFormat),
		m.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpsertMap", "args", []any{m.ID, m.Name}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Map{}, fmt.Errorf("upsert map %d: %w", m.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "UpsertMap", "args", []any{m.ID, m.Name}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)

	return s.GetMap(ctx, m.ID)
}

// GetMap returns the map or store.ErrNotFound.
func (s *sqliteStore) GetMap(ctx context.Context, id uint64) (bpfreg.Map, error) {
	start := time.Now()
	row := s.stmtGetMap.QueryRowContext(ctx, uintblob.New(id))

	m, err := scanMap(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sql", "stmt", "GetMap", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 0)
		return bpfreg.Map{}, fmt.Errorf("map %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Debug("sql", "stmt", "GetMap", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Map{}, err
	}
	s.logger.Debug("sql", "stmt", "GetMap", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 1)
	return m, nil
}

// ListMaps returns all maps in identifier order.
func (s *sqliteStore) ListMaps(ctx context.Context) ([]bpfreg.Map, error) {
	start := time.Now()
	rows, err := s.stmtListMaps.QueryContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListMaps", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []bpfreg.Map
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListMaps", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// UpdateMap writes the caller's full desired state and bumps
// updated_at. Returns store.ErrNotFound if the row does not exist.
func (s *sqliteStore) UpdateMap(ctx context.Context, m bpfreg.Map) (bpfreg.Map, error) {
	m.UpdatedAt = now()

	start := time.Now()
	result, err := s.stmtUpdateMap.ExecContext(ctx,
		m.Name,
		nullString(m.MapType),
		nullInt32(m.KeySize),
		nullInt32(m.ValueSize),
		nullInt32(m.MaxEntries),
		m.UpdatedAt.Format(timeFormat),
		uintblob.New(m.ID),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpdateMap", "args", []any{m.ID}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Map{}, fmt.Errorf("update map %d: %w", m.ID, classify(err))
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "UpdateMap", "args", []any{m.ID}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	if rows == 0 {
		return bpfreg.Map{}, fmt.Errorf("map %d: %w", m.ID, store.ErrNotFound)
	}
	return m, nil
}

// DeleteMap removes the map and, via cascade, its program
// associations. Returns whether a row was deleted.
func (s *sqliteStore) DeleteMap(ctx context.Context, id uint64) (bool, error) {
	start := time.Now()
	result, err := s.stmtDeleteMap.ExecContext(ctx, uintblob.New(id))
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteMap", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return false, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteMap", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows > 0, nil
}

// DeleteAllMaps removes every map. Returns the number of rows
// deleted.
func (s *sqliteStore) DeleteAllMaps(ctx context.Context) (int64, error) {
	start := time.Now()
	result, err := s.stmtDeleteAllMaps.ExecContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteAllMaps", "duration_ms", msec(time.Since(start)), "error", err)
		return 0, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteAllMaps", "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows, nil
}

// CreateProgramMap records that a program uses a map. Both rows must
// exist; a duplicate association fails with store.ErrConflict and a
// dangling reference with store.ErrForeignKey.
func (s *sqliteStore) CreateProgramMap(ctx context.Context, programID, mapID uint64) error {
	start := time.Now()
	_, err := s.stmtCreateProgramMap.ExecContext(ctx, uintblob.New(programID), uintblob.New(mapID))
	if err != nil {
		s.logger.Debug("sql", "stmt", "CreateProgramMap", "args", []any{programID, mapID}, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("insert program-map %d/%d: %w", programID, mapID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "CreateProgramMap", "args", []any{programID, mapID}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)
	return nil
}

// ListProgramMaps returns every program-map association ordered by
// program then map identifier.
func (s *sqliteStore) ListProgramMaps(ctx context.Context) ([]bpfreg.ProgramMap, error) {
	start := time.Now()
	rows, err := s.stmtListProgramMaps.QueryContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListProgramMaps", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	result, err := collectProgramMaps(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListProgramMaps", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// ListProgramMapsByProgram returns the associations for one program
// in map identifier order.
func (s *sqliteStore) ListProgramMapsByProgram(ctx context.Context, programID uint64) ([]bpfreg.ProgramMap, error) {
	start := time.Now()
	rows, err := s.stmtListProgramMapsByProgram.QueryContext(ctx, uintblob.New(programID))
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListProgramMapsByProgram", "args", []any{programID}, "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	result, err := collectProgramMaps(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListProgramMapsByProgram", "args", []any{programID}, "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

func collectProgramMaps(rows *sql.Rows) ([]bpfreg.ProgramMap, error) {
	var result []bpfreg.ProgramMap
	for rows.Next() {
		var programID, mapID uintblob.U64
		if err := rows.Scan(&programID, &mapID); err != nil {
			return nil, err
		}
		result = append(result, bpfreg.ProgramMap{ProgramID: programID.Get(), MapID: mapID.Get()})
	}
	return result, rows.Err()
}
