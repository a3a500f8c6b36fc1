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

// Nullable column conversion helpers. Empty strings and nil pointers
// map to NULL; the scan helpers reverse the mapping.

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt32(v *int32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullUint32(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

func int32Ptr(ni sql.NullInt64) *int32 {
	if !ni.Valid {
		return nil
	}
	v := int32(ni.Int64)
	return &v
}

func uint32Ptr(ni sql.NullInt64) *uint32 {
	if !ni.Valid {
		return nil
	}
	v := uint32(ni.Int64)
	return &v
}

// timeFormat is the stored timestamp layout. RFC3339Nano round-trips
// exactly and sorts lexicographically for UTC times.
const timeFormat = time.RFC3339Nano

// now returns the current UTC time with the monotonic reading
// stripped, so a value that went through the database compares equal
// to the one handed back from a write.
func now() time.Time {
	return time.Now().UTC().Round(0)
}

// normalizeProgram fills the JSON-typed defaults so the stored row
// always carries well-formed documents.
func normalizeProgram(p bpfreg.Program) bpfreg.Program {
	if p.Metadata == "" {
		p.Metadata = "{}"
	}
	if p.GlobalData == "" {
		p.GlobalData = "{}"
	}
	if p.KernelMapIDs == "" {
		p.KernelMapIDs = "[]"
	}
	if p.ProgramBytes == nil {
		p.ProgramBytes = []byte{}
	}
	return p
}

// programInsertArgs builds the argument list in programColumns order.
func programInsertArgs(p bpfreg.Program) []any {
	return []any{
		uintblob.New(p.ID),
		p.Name,
		nullString(p.Description),
		string(p.Kind),
		string(p.State),
		string(p.LocationType),
		nullString(p.FilePath),
		nullString(p.ImageURL),
		nullString(p.ImagePullPolicy),
		nullString(p.Username),
		nullString(p.Password),
		p.MapPinPath,
		nullUint32(p.MapOwnerID),
		p.ProgramBytes,
		p.Metadata,
		p.GlobalData,
		nullBool(p.Retprobe),
		nullString(p.FnName),
		nullString(p.KernelName),
		nullInt32(p.KernelProgramType),
		nullString(p.KernelLoadedAt),
		nullString(p.KernelTag),
		nullBool(p.KernelGPLCompatible),
		nullInt32(p.KernelBTFID),
		nullInt32(p.KernelBytesXlated),
		nullBool(p.KernelJited),
		nullInt32(p.KernelBytesJited),
		nullInt32(p.KernelVerifiedInsns),
		p.KernelMapIDs,
		nullInt32(p.KernelBytesMemlock),
		p.CreatedAt.Format(timeFormat),
		p.UpdatedAt.Format(timeFormat),
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProgram scans one row in programColumns order.
func scanProgram(sc rowScanner) (bpfreg.Program, error) {
	var id uintblob.U64
	var name, kind, state, locationType, mapPinPath string
	var metadata, globalData, kernelMapIDs string
	var programBytes []byte
	var description, filePath, imageURL, imagePullPolicy, username, password sql.NullString
	var fnName, kernelName, kernelLoadedAt, kernelTag sql.NullString
	var mapOwnerID, kernelProgramType, kernelBTFID, kernelBytesXlated sql.NullInt64
	var kernelBytesJited, kernelVerifiedInsns, kernelBytesMemlock sql.NullInt64
	var retprobe, kernelGPLCompatible, kernelJited sql.NullBool
	var createdAtStr, updatedAtStr string

	err := sc.Scan(
		&id,
		&name,
		&description,
		&kind,
		&state,
		&locationType,
		&filePath,
		&imageURL,
		&imagePullPolicy,
		&username,
		&password,
		&mapPinPath,
		&mapOwnerID,
		&programBytes,
		&metadata,
		&globalData,
		&retprobe,
		&fnName,
		&kernelName,
		&kernelProgramType,
		&kernelLoadedAt,
		&kernelTag,
		&kernelGPLCompatible,
		&kernelBTFID,
		&kernelBytesXlated,
		&kernelJited,
		&kernelBytesJited,
		&kernelVerifiedInsns,
		&kernelMapIDs,
		&kernelBytesMemlock,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return bpfreg.Program{}, err
	}

	programKind, ok := bpfreg.ParseProgramKind(kind)
	if !ok {
		return bpfreg.Program{}, fmt.Errorf("invalid program kind: %q", kind)
	}
	programState, ok := bpfreg.ParseProgramState(state)
	if !ok {
		return bpfreg.Program{}, fmt.Errorf("invalid program state: %q", state)
	}
	location, ok := bpfreg.ParseLocationType(locationType)
	if !ok {
		return bpfreg.Program{}, fmt.Errorf("invalid location type: %q", locationType)
	}

	createdAt, err := time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return bpfreg.Program{}, fmt.Errorf("invalid created_at timestamp %q: %w", createdAtStr, err)
	}
	updatedAt, err := time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return bpfreg.Program{}, fmt.Errorf("invalid updated_at timestamp %q: %w", updatedAtStr, err)
	}

	return bpfreg.Program{
		ID:                  id.Get(),
		Name:                name,
		Description:         description.String,
		Kind:                programKind,
		State:               programState,
		LocationType:        location,
		FilePath:            filePath.String,
		ImageURL:            imageURL.String,
		ImagePullPolicy:     imagePullPolicy.String,
		Username:            username.String,
		Password:            password.String,
		MapPinPath:          mapPinPath,
		MapOwnerID:          uint32Ptr(mapOwnerID),
		ProgramBytes:        programBytes,
		Metadata:            metadata,
		GlobalData:          globalData,
		Retprobe:            boolPtr(retprobe),
		FnName:              fnName.String,
		KernelName:          kernelName.String,
		KernelProgramType:   int32Ptr(kernelProgramType),
		KernelLoadedAt:      kernelLoadedAt.String,
		KernelTag:           kernelTag.String,
		KernelGPLCompatible: boolPtr(kernelGPLCompatible),
		KernelBTFID:         int32Ptr(kernelBTFID),
		KernelBytesXlated:   int32Ptr(kernelBytesXlated),
		KernelJited:         boolPtr(kernelJited),
		KernelBytesJited:    int32Ptr(kernelBytesJited),
		KernelVerifiedInsns: int32Ptr(kernelVerifiedInsns),
		KernelMapIDs:        kernelMapIDs,
		KernelBytesMemlock:  int32Ptr(kernelBytesMemlock),
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}, nil
}

// CreateProgram inserts a new program row, setting both timestamps
// to the current time. A caller-supplied identifier that already
// exists fails with store.ErrConflict.
func (s *sqliteStore) CreateProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error) {
	p = normalizeProgram(p)
	t := now()
	p.CreatedAt, p.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtCreateProgram.ExecContext(ctx, programInsertArgs(p)...)
	if err != nil {
		s.logger.Debug("sql", "stmt", "CreateProgram", "args", []any{p.ID, p.Name}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Program{}, fmt.Errorf("insert program %d: %w", p.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "CreateProgram", "args", []any{p.ID, p.Name}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)
	return p, nil
}

// UpsertProgram stores a program using last-write-wins semantics.
// On identifier reuse the original created_at is preserved and
// updated_at moves forward, so created_at != updated_at signals a
// recycled kernel ID.
func (s *sqliteStore) UpsertProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error) {
	p = normalizeProgram(p)
	t := now()
	p.CreatedAt, p.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtUpsertProgram.ExecContext(ctx, programInsertArgs(p)...)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpsertProgram", "args", []any{p.ID, p.Name}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Program{}, fmt.Errorf("upsert program %d: %w", p.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "UpsertProgram", "args", []any{p.ID, p.Name}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)

	// Re-read so the caller sees the preserved created_at on the
	// overwrite path.
	return s.GetProgram(ctx, p.ID)
}

// GetProgram returns the program or store.ErrNotFound.
func (s *sqliteStore) GetProgram(ctx context.Context, id uint64) (bpfreg.Program, error) {
	start := time.Now()
	row := s.stmtGetProgram.QueryRowContext(ctx, uintblob.New(id))

	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sql", "stmt", "GetProgram", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 0)
		return bpfreg.Program{}, fmt.Errorf("program %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Debug("sql", "stmt", "GetProgram", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Program{}, err
	}
	s.logger.Debug("sql", "stmt", "GetProgram", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 1)
	return p, nil
}

// ListPrograms returns all programs in identifier order. The BLOB
// encoding makes that numeric order, not string order.
func (s *sqliteStore) ListPrograms(ctx context.Context) ([]bpfreg.Program, error) {
	start := time.Now()
	rows, err := s.stmtListPrograms.QueryContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListPrograms", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []bpfreg.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListPrograms", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// UpdateProgram writes the caller's full desired state and bumps
// updated_at. Returns store.ErrNotFound if the row does not exist.
func (s *sqliteStore) UpdateProgram(ctx context.Context, p bpfreg.Program) (bpfreg.Program, error) {
	p = normalizeProgram(p)
	p.UpdatedAt = now()

	args := programInsertArgs(p)
	// Rotate into UPDATE order: drop id and created_at, append the
	// id for the WHERE clause.
	updateArgs := append(args[1:30], args[31], args[0])

	start := time.Now()
	result, err := s.stmtUpdateProgram.ExecContext(ctx, updateArgs...)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpdateProgram", "args", []any{p.ID}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Program{}, fmt.Errorf("update program %d: %w", p.ID, classify(err))
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "UpdateProgram", "args", []any{p.ID}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	if rows == 0 {
		return bpfreg.Program{}, fmt.Errorf("program %d: %w", p.ID, store.ErrNotFound)
	}
	return p, nil
}

// DeleteProgram removes the program. Dependent links and program-map
// rows go with it via the engine's cascades. Returns whether a row
// was deleted.
func (s *sqliteStore) DeleteProgram(ctx context.Context, id uint64) (bool, error) {
	start := time.Now()
	result, err := s.stmtDeleteProgram.ExecContext(ctx, uintblob.New(id))
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteProgram", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return false, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteProgram", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows > 0, nil
}

// DeleteAllPrograms removes every program, cascading to links and
// program-map rows. Returns the number of program rows deleted.
func (s *sqliteStore) DeleteAllPrograms(ctx context.Context) (int64, error) {
	start := time.Now()
	result, err := s.stmtDeleteAllPrograms.ExecContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteAllPrograms", "duration_ms", msec(time.Since(start)), "error", err)
		return 0, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteAllPrograms", "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows, nil
}
