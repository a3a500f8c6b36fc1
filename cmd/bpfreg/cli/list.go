package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/frobware/bpfreg"
)

// ListCmd lists registered programs, links or maps.
type ListCmd struct {
	Programs ListProgramsCmd `cmd:"" default:"withargs" help:"List registered programs."`
	Links    ListLinksCmd    `cmd:"" help:"List registered links."`
	Maps     ListMapsCmd     `cmd:"" help:"List registered maps."`
}

// ListProgramsCmd lists registered programs.
type ListProgramsCmd struct{}

// Run executes the list programs command.
func (c *ListProgramsCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	programs, err := st.ListPrograms(ctx)
	if err != nil {
		return err
	}
	if len(programs) == 0 {
		fmt.Println("No programs registered")
		return nil
	}
	return printJSON(programs)
}

// ListLinksCmd lists registered links, optionally for one program.
type ListLinksCmd struct {
	ProgramID *RegistryID `name:"program-id" help:"Filter by program ID (supports hex with 0x prefix)."`
}

// Run executes the list links command.
func (c *ListLinksCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var links []bpfreg.Link
	if c.ProgramID != nil {
		links, err = st.ListLinksByProgram(ctx, c.ProgramID.Value)
	} else {
		links, err = st.ListLinks(ctx)
	}
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Println("No links registered")
		return nil
	}
	return printJSON(links)
}

// ListMapsCmd lists registered maps.
type ListMapsCmd struct{}

// Run executes the list maps command.
func (c *ListMapsCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	maps, err := st.ListMaps(ctx)
	if err != nil {
		return err
	}
	if len(maps) == 0 {
		fmt.Println("No maps registered")
		return nil
	}
	return printJSON(maps)
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Printf("%s\n", output)
	return nil
}
