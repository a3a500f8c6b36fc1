package sqlite

import (
	"context"
	"fmt"

	"github.com/frobware/bpfreg"
	"github.com/frobware/bpfreg/store"
)

// AttachLink records a program attachment as a single transaction:
// the link row is created in state attached and the owning program
// moves to state attached. If any step fails nothing is written and
// the program keeps its prior state.
func (s *sqliteStore) AttachLink(ctx context.Context, programID uint64, l bpfreg.Link) (bpfreg.Link, error) {
	l.ProgramID = programID
	l.State = bpfreg.LinkStateAttached

	var created bpfreg.Link
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		p, err := tx.GetProgram(ctx, programID)
		if err != nil {
			return err
		}

		created, err = tx.CreateLink(ctx, l)
		if err != nil {
			return err
		}

		p.State = bpfreg.ProgramStateAttached
		_, err = tx.UpdateProgram(ctx, p)
		return err
	})
	if err != nil {
		return bpfreg.Link{}, fmt.Errorf("attach link %d to program %d: %w", l.ID, programID, err)
	}
	return created, nil
}

// AttachMap records that a program uses a map as a single
// transaction: the map row and the program-map association are
// created together or not at all.
func (s *sqliteStore) AttachMap(ctx context.Context, programID uint64, m bpfreg.Map) (bpfreg.Map, error) {
	var created bpfreg.Map
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		created, err = tx.CreateMap(ctx, m)
		if err != nil {
			return err
		}
		return tx.CreateProgramMap(ctx, programID, m.ID)
	})
	if err != nil {
		return bpfreg.Map{}, fmt.Errorf("attach map %d to program %d: %w", m.ID, programID, err)
	}
	return created, nil
}
