package cli

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// InspectCmd dumps raw registry tables, bypassing the repository
// layer. Useful for poking at a database whose contents the typed
// codec would reject: 8-byte BLOBs render as uint64, anything else
// as hex with its length.
type InspectCmd struct {
	Table string `name:"table" help:"Dump only this table."`
}

// Run executes the inspect command.
func (c *InspectCmd) Run(cli *CLI, ctx context.Context) error {
	path, err := cli.DatabasePath()
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	tables, err := registryTables(ctx, db)
	if err != nil {
		return err
	}

	if c.Table != "" {
		found := false
		for _, t := range tables {
			if t == c.Table {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no registry table named %q", c.Table)
		}
		tables = []string{c.Table}
	}

	for i, table := range tables {
		if i > 0 {
			fmt.Println()
		}
		if err := dumpTable(ctx, db, table); err != nil {
			return fmt.Errorf("dump %s: %w", table, err)
		}
	}
	return nil
}

// registryTables lists the bpf_% tables present in the database.
func registryTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'bpf_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, table string) error {
	// table comes from sqlite_master or was validated against it, so
	// interpolation is safe here.
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	fmt.Printf("%s:\n", table)

	count := 0
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		fields := make([]string, 0, len(cols))
		for i, col := range cols {
			fields = append(fields, fmt.Sprintf("%s=%s", col, renderValue(values[i])))
		}
		fmt.Printf("  %s\n", strings.Join(fields, " "))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fmt.Printf("  (%d rows)\n", count)
	return nil
}

// renderValue formats a raw column value. Fixed 8-byte BLOBs are
// shown as the uint64 they encode; other BLOBs as hex with length.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		if len(val) == 8 {
			return fmt.Sprintf("%d", binary.BigEndian.Uint64(val))
		}
		return fmt.Sprintf("x'%s'(%d bytes)", hex.EncodeToString(val), len(val))
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
