package cli

import (
	"context"
	"fmt"
	"math"

	"github.com/frobware/bpfreg"
)

// SeedCmd walks a sample program through the full lifecycle:
// register, load, attach a link, register its maps. Handy for
// demonstrating the registry against a scratch database.
type SeedCmd struct{}

// Run executes the seed command.
func (c *SeedCmd) Run(cli *CLI, ctx context.Context) error {
	st, err := cli.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p := bpfreg.NewProgram()
	p.ID = 42
	p.Name = "sample-xdp"
	p.Description = "seeded demonstration program"
	p.Kind = bpfreg.ProgramKindXDP
	p.LocationType = bpfreg.LocationTypeFile
	p.FilePath = "/opt/bpf/sample.o"
	p.MapPinPath = "/sys/fs/bpf/sample-xdp"

	created, err := st.UpsertProgram(ctx, p)
	if err != nil {
		return fmt.Errorf("seed program: %w", err)
	}
	fmt.Printf("program %d (%s) state=%s\n", created.ID, created.Name, created.State)

	created.State = bpfreg.ProgramStateLoaded
	created.KernelName = "sample_xdp"
	if _, err := st.UpdateProgram(ctx, created); err != nil {
		return fmt.Errorf("mark loaded: %w", err)
	}

	link, err := st.AttachLink(ctx, created.ID, bpfreg.Link{
		ID:       100,
		LinkType: "xdp",
		Target:   "eth0",
	})
	if err != nil {
		return fmt.Errorf("attach link: %w", err)
	}
	fmt.Printf("link %d -> program %d target=%s state=%s\n", link.ID, link.ProgramID, link.Target, link.State)

	// Register maps top-down from the 32-bit ceiling, the way the
	// kernel hands out IDs on a long-running host.
	for i := 0; i < 10; i++ {
		id := uint64(math.MaxUint32) - uint64(i)
		if _, err := st.AttachMap(ctx, created.ID, bpfreg.Map{
			ID:      id,
			Name:    fmt.Sprintf("sample_map_%d", i),
			MapType: "hash",
		}); err != nil {
			return fmt.Errorf("attach map %d: %w", id, err)
		}
	}

	programs, err := st.ListPrograms(ctx)
	if err != nil {
		return err
	}
	links, err := st.ListLinks(ctx)
	if err != nil {
		return err
	}
	maps, err := st.ListMaps(ctx)
	if err != nil {
		return err
	}
	assocs, err := st.ListProgramMaps(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("totals: %d programs, %d links, %d maps, %d associations\n",
		len(programs), len(links), len(maps), len(assocs))
	return nil
}
