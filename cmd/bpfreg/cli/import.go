package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/frobware/bpfreg"
	"github.com/frobware/bpfreg/store"
)

// ImportCmd bulk-imports registry records from JSON documents. Each
// document is an array of records using the column names of the
// corresponding table. Every document is applied in one transaction,
// so a malformed record aborts that document without partial writes.
type ImportCmd struct {
	Programs string `name:"programs" help:"JSON array of programs."`
	Maps     string `name:"maps" help:"JSON array of maps."`
	Links    string `name:"links" help:"JSON array of links."`
}

// Run executes the import command. Programs import before links so
// foreign keys resolve within one invocation.
func (c *ImportCmd) Run(cli *CLI, ctx context.Context) error {
	if c.Programs == "" && c.Maps == "" && c.Links == "" {
		return fmt.Errorf("nothing to import: provide --programs, --maps or --links")
	}

	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if c.Programs != "" {
		n, err := importPrograms(ctx, st, c.Programs)
		if err != nil {
			return fmt.Errorf("import programs from %s: %w", c.Programs, err)
		}
		fmt.Printf("imported %d programs\n", n)
	}

	if c.Maps != "" {
		n, err := importMaps(ctx, st, c.Maps)
		if err != nil {
			return fmt.Errorf("import maps from %s: %w", c.Maps, err)
		}
		fmt.Printf("imported %d maps\n", n)
	}

	if c.Links != "" {
		n, err := importLinks(ctx, st, c.Links)
		if err != nil {
			return fmt.Errorf("import links from %s: %w", c.Links, err)
		}
		fmt.Printf("imported %d links\n", n)
	}

	return nil
}

func importPrograms(ctx context.Context, st store.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var programs []bpfreg.Program
	if err := json.Unmarshal(data, &programs); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	err = st.RunInTransaction(ctx, func(tx store.Store) error {
		for _, p := range programs {
			if p.State == "" {
				p.State = bpfreg.ProgramStatePreLoad
			}
			if _, err := tx.UpsertProgram(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(programs), nil
}

func importMaps(ctx context.Context, st store.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var maps []bpfreg.Map
	if err := json.Unmarshal(data, &maps); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	err = st.RunInTransaction(ctx, func(tx store.Store) error {
		for _, m := range maps {
			if _, err := tx.UpsertMap(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(maps), nil
}

func importLinks(ctx context.Context, st store.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var links []bpfreg.Link
	if err := json.Unmarshal(data, &links); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	err = st.RunInTransaction(ctx, func(tx store.Store) error {
		for _, l := range links {
			if l.State == "" {
				l.State = bpfreg.LinkStatePreAttach
			}
			if _, err := tx.UpsertLink(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(links), nil
}
