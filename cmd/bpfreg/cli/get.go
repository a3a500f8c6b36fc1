package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/frobware/bpfreg"
	"github.com/frobware/bpfreg/store"
)

// GetCmd gets details of one registered entity.
type GetCmd struct {
	Program GetProgramCmd `cmd:"" help:"Get one program, with its links and maps."`
	Link    GetLinkCmd    `cmd:"" help:"Get one link."`
	Map     GetMapCmd     `cmd:"" help:"Get one map."`
}

// GetProgramCmd shows a program together with its links and map
// associations.
type GetProgramCmd struct {
	ID RegistryID `arg:"" help:"Program ID (supports hex with 0x prefix)."`
}

// Run executes the get program command.
func (c *GetProgramCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p, err := st.GetProgram(ctx, c.ID.Value)
	if errors.Is(err, store.ErrNotFound) {
		return bpfreg.ErrProgramNotFound{ID: c.ID.Value}
	}
	if err != nil {
		return err
	}

	links, err := st.ListLinksByProgram(ctx, p.ID)
	if err != nil {
		return err
	}
	assocs, err := st.ListProgramMapsByProgram(ctx, p.ID)
	if err != nil {
		return err
	}

	return printJSON(struct {
		Program bpfreg.Program      `json:"program"`
		Links   []bpfreg.Link       `json:"links,omitempty"`
		Maps    []bpfreg.ProgramMap `json:"maps,omitempty"`
	}{Program: p, Links: links, Maps: assocs})
}

// GetLinkCmd shows one link.
type GetLinkCmd struct {
	ID RegistryID `arg:"" help:"Link ID (supports hex with 0x prefix)."`
}

// Run executes the get link command.
func (c *GetLinkCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	l, err := st.GetLink(ctx, c.ID.Value)
	if errors.Is(err, store.ErrNotFound) {
		return bpfreg.ErrLinkNotFound{ID: c.ID.Value}
	}
	if err != nil {
		return err
	}
	return printJSON(l)
}

// GetMapCmd shows one map.
type GetMapCmd struct {
	ID RegistryID `arg:"" help:"Map ID (supports hex with 0x prefix)."`
}

// Run executes the get map command.
func (c *GetMapCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	m, err := st.GetMap(ctx, c.ID.Value)
	if errors.Is(err, store.ErrNotFound) {
		return bpfreg.ErrMapNotFound{ID: c.ID.Value}
	}
	if err != nil {
		return err
	}
	return printJSON(m)
}
