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

func scanLink(sc rowScanner) (bpfreg.Link, error) {
	var id, programID uintblob.U64
	var linkType, target sql.NullString
	var state string
	var createdAtStr, updatedAtStr string

	err := sc.Scan(&id, &programID, &linkType, &target, &state, &createdAtStr, &updatedAtStr)
	if err != nil {
		return bpfreg.Link{}, err
	}

	linkState, ok := bpfreg.ParseLinkState(state)
	if !ok {
		return bpfreg.Link{}, fmt.Errorf("invalid link state: %q", state)
	}
	createdAt, err := time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return bpfreg.Link{}, fmt.Errorf("invalid created_at timestamp %q: %w", createdAtStr, err)
	}
	updatedAt, err := time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return bpfreg.Link{}, fmt.Errorf("invalid updated_at timestamp %q: %w", updatedAtStr, err)
	}

	return bpfreg.Link{
		ID:        id.Get(),
		ProgramID: programID.Get(),
		LinkType:  linkType.String,
		Target:    target.String,
		State:     linkState,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// CreateLink inserts a new link row. The program it references must
// already exist; a dangling program_id fails with store.ErrForeignKey
// and a duplicate identifier with store.ErrConflict.
func (s *sqliteStore) CreateLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error) {
	t := now()
	l.CreatedAt, l.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtCreateLink.ExecContext(ctx,
		uintblob.New(l.ID),
		uintblob.New(l.ProgramID),
		nullString(l.LinkType),
		nullString(l.Target),
		string(l.State),
		l.CreatedAt.Format(timeFormat),
		l.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "CreateLink", "args", []any{l.ID, l.ProgramID}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Link{}, fmt.Errorf("insert link %d: %w", l.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "CreateLink", "args", []any{l.ID, l.ProgramID}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)
	return l, nil
}

// UpsertLink stores a link using last-write-wins semantics,
// preserving created_at across identifier reuse.
func (s *sqliteStore) UpsertLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error) {
	t := now()
	l.CreatedAt, l.UpdatedAt = t, t

	start := time.Now()
	_, err := s.stmtUpsertLink.ExecContext(ctx,
		uintblob.New(l.ID),
		uintblob.New(l.ProgramID),
		nullString(l.LinkType),
		nullString(l.Target),
		string(l.State),
		l.CreatedAt.Format(timeFormat),
		l.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpsertLink", "args", []any{l.ID, l.ProgramID}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Link{}, fmt.Errorf("upsert link %d: %w", l.ID, classify(err))
	}
	s.logger.Debug("sql", "stmt", "UpsertLink", "args", []any{l.ID, l.ProgramID}, "duration_ms", msec(time.Since(start)), "rows_affected", 1)

	return s.GetLink(ctx, l.ID)
}

// GetLink returns the link or store.ErrNotFound.
func (s *sqliteStore) GetLink(ctx context.Context, id uint64) (bpfreg.Link, error) {
	start := time.Now()
	row := s.stmtGetLink.QueryRowContext(ctx, uintblob.New(id))

	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sql", "stmt", "GetLink", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 0)
		return bpfreg.Link{}, fmt.Errorf("link %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Debug("sql", "stmt", "GetLink", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Link{}, err
	}
	s.logger.Debug("sql", "stmt", "GetLink", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows", 1)
	return l, nil
}

// ListLinks returns all links in identifier order.
func (s *sqliteStore) ListLinks(ctx context.Context) ([]bpfreg.Link, error) {
	start := time.Now()
	rows, err := s.stmtListLinks.QueryContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListLinks", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []bpfreg.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListLinks", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// ListLinksByProgram returns the links attached to one program, in
// identifier order.
func (s *sqliteStore) ListLinksByProgram(ctx context.Context, programID uint64) ([]bpfreg.Link, error) {
	start := time.Now()
	rows, err := s.stmtListLinksByProgram.QueryContext(ctx, uintblob.New(programID))
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListLinksByProgram", "args", []any{programID}, "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []bpfreg.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("sql", "stmt", "ListLinksByProgram", "args", []any{programID}, "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// UpdateLink writes the caller's full desired state and bumps
// updated_at. Returns store.ErrNotFound if the row does not exist.
func (s *sqliteStore) UpdateLink(ctx context.Context, l bpfreg.Link) (bpfreg.Link, error) {
	l.UpdatedAt = now()

	start := time.Now()
	result, err := s.stmtUpdateLink.ExecContext(ctx,
		uintblob.New(l.ProgramID),
		nullString(l.LinkType),
		nullString(l.Target),
		string(l.State),
		l.UpdatedAt.Format(timeFormat),
		uintblob.New(l.ID),
	)
	if err != nil {
		s.logger.Debug("sql", "stmt", "UpdateLink", "args", []any{l.ID}, "duration_ms", msec(time.Since(start)), "error", err)
		return bpfreg.Link{}, fmt.Errorf("update link %d: %w", l.ID, classify(err))
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "UpdateLink", "args", []any{l.ID}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	if rows == 0 {
		return bpfreg.Link{}, fmt.Errorf("link %d: %w", l.ID, store.ErrNotFound)
	}
	return l, nil
}

// DeleteLink removes the link. Returns whether a row was deleted.
func (s *sqliteStore) DeleteLink(ctx context.Context, id uint64) (bool, error) {
	start := time.Now()
	result, err := s.stmtDeleteLink.ExecContext(ctx, uintblob.New(id))
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteLink", "args", []any{id}, "duration_ms", msec(time.Since(start)), "error", err)
		return false, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteLink", "args", []any{id}, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows > 0, nil
}

// DeleteAllLinks removes every link. Returns the number of rows
// deleted.
func (s *sqliteStore) DeleteAllLinks(ctx context.Context) (int64, error) {
	start := time.Now()
	result, err := s.stmtDeleteAllLinks.ExecContext(ctx)
	if err != nil {
		s.logger.Debug("sql", "stmt", "DeleteAllLinks", "duration_ms", msec(time.Since(start)), "error", err)
		return 0, classify(err)
	}
	rows, _ := result.RowsAffected()
	s.logger.Debug("sql", "stmt", "DeleteAllLinks", "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return rows, nil
}
