package sqlite

import (
	"context"
	"fmt"
)

// programColumns is the canonical column order shared by every
// program SELECT and INSERT. Scan code depends on this order.
const programColumns = `id, name, description, kind, state, location_type,
	file_path, image_url, image_pull_policy, username, password,
	map_pin_path, map_owner_id, program_bytes, metadata, global_data,
	retprobe, fn_name,
	kernel_name, kernel_program_type, kernel_loaded_at, kernel_tag,
	kernel_gpl_compatible, kernel_btf_id, kernel_bytes_xlated,
	kernel_jited, kernel_bytes_jited, kernel_verified_insns,
	kernel_map_ids, kernel_bytes_memlock,
	created_at, updated_at`

// prepareStatements prepares all SQL statements for reuse.
func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	if err := s.prepareProgramStatements(ctx); err != nil {
		return err
	}
	if err := s.prepareLinkStatements(ctx); err != nil {
		return err
	}
	if err := s.prepareMapStatements(ctx); err != nil {
		return err
	}
	return s.prepareProgramMapStatements(ctx)
}

func (s *sqliteStore) prepareProgramStatements(ctx context.Context) error {
	var err error

	insert := `
		INSERT INTO bpf_programs (` + programColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.stmtCreateProgram, err = s.db.PrepareContext(ctx, insert); err != nil {
		return fmt.Errorf("prepare CreateProgram: %w", err)
	}

	// Whole-row replace on identifier reuse; created_at survives
	// the conflict so created_at != updated_at signals a recycled
	// kernel ID.
	upsert := insert + `
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name,
		  description = excluded.description,
		  kind = excluded.kind,
		  state = excluded.state,
		  location_type = excluded.location_type,
		  file_path = excluded.file_path,
		  image_url = excluded.image_url,
		  image_pull_policy = excluded.image_pull_policy,
		  username = excluded.username,
		  password = excluded.password,
		  map_pin_path = excluded.map_pin_path,
		  map_owner_id = excluded.map_owner_id,
		  program_bytes = excluded.program_bytes,
		  metadata = excluded.metadata,
		  global_data = excluded.global_data,
		  retprobe = excluded.retprobe,
		  fn_name = excluded.fn_name,
		  kernel_name = excluded.kernel_name,
		  kernel_program_type = excluded.kernel_program_type,
		  kernel_loaded_at = excluded.kernel_loaded_at,
		  kernel_tag = excluded.kernel_tag,
		  kernel_gpl_compatible = excluded.kernel_gpl_compatible,
		  kernel_btf_id = excluded.kernel_btf_id,
		  kernel_bytes_xlated = excluded.kernel_bytes_xlated,
		  kernel_jited = excluded.kernel_jited,
		  kernel_bytes_jited = excluded.kernel_bytes_jited,
		  kernel_verified_insns = excluded.kernel_verified_insns,
		  kernel_map_ids = excluded.kernel_map_ids,
		  kernel_bytes_memlock = excluded.kernel_bytes_memlock,
		  updated_at = excluded.updated_at`
	if s.stmtUpsertProgram, err = s.db.PrepareContext(ctx, upsert); err != nil {
		return fmt.Errorf("prepare UpsertProgram: %w", err)
	}

	get := "SELECT " + programColumns + " FROM bpf_programs WHERE id = ?"
	if s.stmtGetProgram, err = s.db.PrepareContext(ctx, get); err != nil {
		return fmt.Errorf("prepare GetProgram: %w", err)
	}

	list := "SELECT " + programColumns + " FROM bpf_programs ORDER BY id"
	if s.stmtListPrograms, err = s.db.PrepareContext(ctx, list); err != nil {
		return fmt.Errorf("prepare ListPrograms: %w", err)
	}

	update := `
		UPDATE bpf_programs SET
		  name = ?, description = ?, kind = ?, state = ?, location_type = ?,
		  file_path = ?, image_url = ?, image_pull_policy = ?, username = ?, password = ?,
		  map_pin_path = ?, map_owner_id = ?, program_bytes = ?, metadata = ?, global_data = ?,
		  retprobe = ?, fn_name = ?,
		  kernel_name = ?, kernel_program_type = ?, kernel_loaded_at = ?, kernel_tag = ?,
		  kernel_gpl_compatible = ?, kernel_btf_id = ?, kernel_bytes_xlated = ?,
		  kernel_jited = ?, kernel_bytes_jited = ?, kernel_verified_insns = ?,
		  kernel_map_ids = ?, kernel_bytes_memlock = ?,
		  updated_at = ?
		WHERE id = ?`
	if s.stmtUpdateProgram, err = s.db.PrepareContext(ctx, update); err != nil {
		return fmt.Errorf("prepare UpdateProgram: %w", err)
	}

	const del = "DELETE FROM bpf_programs WHERE id = ?"
	if s.stmtDeleteProgram, err = s.db.PrepareContext(ctx, del); err != nil {
		return fmt.Errorf("prepare DeleteProgram: %w", err)
	}

	const delAll = "DELETE FROM bpf_programs"
	if s.stmtDeleteAllPrograms, err = s.db.PrepareContext(ctx, delAll); err != nil {
		return fmt.Errorf("prepare DeleteAllPrograms: %w", err)
	}

	return nil
}

func (s *sqliteStore) prepareLinkStatements(ctx context.Context) error {
	var err error

	const insert = `
		INSERT INTO bpf_links (id, program_id, link_type, target, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.stmtCreateLink, err = s.db.PrepareContext(ctx, insert); err != nil {
		return fmt.Errorf("prepare CreateLink: %w", err)
	}

	const upsert = insert + `
		ON CONFLICT(id) DO UPDATE SET
		  program_id = excluded.program_id,
		  link_type = excluded.link_type,
		  target = excluded.target,
		  state = excluded.state,
		  updated_at = excluded.updated_at`
	if s.stmtUpsertLink, err = s.db.PrepareContext(ctx, upsert); err != nil {
		return fmt.Errorf("prepare UpsertLink: %w", err)
	}

	const get = `
		SELECT id, program_id, link_type, target, state, created_at, updated_at
		FROM bpf_links WHERE id = ?`
	if s.stmtGetLink, err = s.db.PrepareContext(ctx, get); err != nil {
		return fmt.Errorf("prepare GetLink: %w", err)
	}

	const list = `
		SELECT id, program_id, link_type, target, state, created_at, updated_at
		FROM bpf_links ORDER BY id`
	if s.stmtListLinks, err = s.db.PrepareContext(ctx, list); err != nil {
		return fmt.Errorf("prepare ListLinks: %w", err)
	}

	const listByProgram = `
		SELECT id, program_id, link_type, target, state, created_at, updated_at
		FROM bpf_links WHERE program_id = ? ORDER BY id`
	if s.stmtListLinksByProgram, err = s.db.PrepareContext(ctx, listByProgram); err != nil {
		return fmt.Errorf("prepare ListLinksByProgram: %w", err)
	}

	const update = `
		UPDATE bpf_links SET
		  program_id = ?, link_type = ?, target = ?, state = ?, updated_at = ?
		WHERE id = ?`
	if s.stmtUpdateLink, err = s.db.PrepareContext(ctx, update); err != nil {
		return fmt.Errorf("prepare UpdateLink: %w", err)
	}

	const del = "DELETE FROM bpf_links WHERE id = ?"
	if s.stmtDeleteLink, err = s.db.PrepareContext(ctx, del); err != nil {
		return fmt.Errorf("prepare DeleteLink: %w", err)
	}

	const delAll = "DELETE FROM bpf_links"
	if s.stmtDeleteAllLinks, err = s.db.PrepareContext(ctx, delAll); err != nil {
		return fmt.Errorf("prepare DeleteAllLinks: %w", err)
	}

	return nil
}

func (s *sqliteStore) prepareMapStatements(ctx context.Context) error {
	var err error

	const insert = `
		INSERT INTO bpf_maps (id, name, map_type, key_size, value_size, max_entries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if s.stmtCreateMap, err = s.db.PrepareContext(ctx, insert); err != nil {
		return fmt.Errorf("prepare CreateMap: %w", err)
	}

	const upsert = insert + `
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name,
		  map_type = excluded.map_type,
		  key_size = excluded.key_size,
		  value_size = excluded.value_size,
		  max_entries = excluded.max_entries,
		  updated_at = excluded.updated_at`
	if s.stmtUpsertMap, err = s.db.PrepareContext(ctx, upsert); err != nil {
		return fmt.Errorf("prepare UpsertMap: %w", err)
	}

	const get = `
		SELECT id, name, map_type, key_size, value_size, max_entries, created_at, updated_at
		FROM bpf_maps WHERE id = ?`
	if s.stmtGetMap, err = s.db.PrepareContext(ctx, get); err != nil {
		return fmt.Errorf("prepare GetMap: %w", err)
	}

	const list = `
		SELECT id, name, map_type, key_size, value_size, max_entries, created_at, updated_at
		FROM bpf_maps ORDER BY id`
	if s.stmtListMaps, err = s.db.PrepareContext(ctx, list); err != nil {
		return fmt.Errorf("prepare ListMaps: %w", err)
	}

	const update = `
		UPDATE bpf_maps SET
		  name = ?, map_type = ?, key_size = ?, value_size = ?, max_entries = ?, updated_at = ?
		WHERE id = ?`
	if s.stmtUpdateMap, err = s.db.PrepareContext(ctx, update); err != nil {
		return fmt.Errorf("prepare UpdateMap: %w", err)
	}

	const del = "DELETE FROM bpf_maps WHERE id = ?"
	if s.stmtDeleteMap, err = s.db.PrepareContext(ctx, del); err != nil {
		return fmt.Errorf("prepare DeleteMap: %w", err)
	}

	const delAll = "DELETE FROM bpf_maps"
	if s.stmtDeleteAllMaps, err = s.db.PrepareContext(ctx, delAll); err != nil {
		return fmt.Errorf("prepare DeleteAllMaps: %w", err)
	}

	return nil
}

func (s *sqliteStore) prepareProgramMapStatements(ctx context.Context) error {
	var err error

	const insert = "INSERT INTO bpf_program_maps (program_id, map_id) VALUES (?, ?)"
	if s.stmtCreateProgramMap, err = s.db.PrepareContext(ctx, insert); err != nil {
		return fmt.Errorf("prepare CreateProgramMap: %w", err)
	}

	const list = "SELECT program_id, map_id FROM bpf_program_maps ORDER BY program_id, map_id"
	if s.stmtListProgramMaps, err = s.db.PrepareContext(ctx, list); err != nil {
		return fmt.Errorf("prepare ListProgramMaps: %w", err)
	}

	const listByProgram = "SELECT program_id, map_id FROM bpf_program_maps WHERE program_id = ? ORDER BY map_id"
	if s.stmtListProgramMapsByProgram, err = s.db.PrepareContext(ctx, listByProgram); err != nil {
		return fmt.Errorf("prepare ListProgramMapsByProgram: %w", err)
	}

	return nil
}
