package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/bpfreg"
	"github.com/frobware/bpfreg/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	if os.Getenv("BPFREG_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := NewInMemory(context.Background(), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testProgram(id uint64, name string) bpfreg.Program {
	p := bpfreg.NewProgram()
	p.ID = id
	p.Name = name
	p.Kind = bpfreg.ProgramKindXDP
	p.LocationType = bpfreg.LocationTypeFile
	p.FilePath = "/opt/bpf/" + name + ".o"
	p.MapPinPath = "/sys/fs/bpf/" + name
	return p
}

func TestProgramCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	desc := "drops malformed frames"
	owner := uint32(42)
	p := testProgram(7, "xdp-filter")
	p.Description = desc
	p.MapOwnerID = &owner
	p.ProgramBytes = []byte{0x7f, 0x45, 0x4c, 0x46}
	p.Metadata = `{"team":"netedge"}`

	created, err := st.CreateProgram(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := st.GetProgram(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "xdp-filter", got.Name)
	assert.Equal(t, desc, got.Description)
	assert.Equal(t, bpfreg.ProgramKindXDP, got.Kind)
	assert.Equal(t, bpfreg.ProgramStatePreLoad, got.State)
	assert.Equal(t, bpfreg.LocationTypeFile, got.LocationType)
	require.NotNil(t, got.MapOwnerID)
	assert.Equal(t, owner, *got.MapOwnerID)
	assert.Equal(t, []byte{0x7f, 0x45, 0x4c, 0x46}, got.ProgramBytes)
	assert.Equal(t, `{"team":"netedge"}`, got.Metadata)
	assert.Equal(t, "{}", got.GlobalData)
	assert.Equal(t, "[]", got.KernelMapIDs)
	assert.Nil(t, got.Retprobe)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))

	got.State = bpfreg.ProgramStateLoaded
	got.KernelName = "xdp_filter"
	kernelType := int32(6)
	got.KernelProgramType = &kernelType
	updated, err := st.UpdateProgram(ctx, got)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))

	got, err = st.GetProgram(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStateLoaded, got.State)
	assert.Equal(t, "xdp_filter", got.KernelName)
	require.NotNil(t, got.KernelProgramType)
	assert.Equal(t, int32(6), *got.KernelProgramType)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt), "update must not touch created_at")

	deleted, err := st.DeleteProgram(ctx, 7)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = st.DeleteProgram(ctx, 7)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = st.GetProgram(ctx, 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProgramCreateConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "first"))
	require.NoError(t, err)

	_, err = st.CreateProgram(ctx, testProgram(1, "second"))
	assert.ErrorIs(t, err, store.ErrConflict)

	// The original row is untouched.
	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestProgramUpdateNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.UpdateProgram(context.Background(), testProgram(99, "ghost"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProgramUpsertPreservesCreatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateProgram(ctx, testProgram(5, "original"))
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	replaced, err := st.UpsertProgram(ctx, testProgram(5, "replacement"))
	require.NoError(t, err)
	assert.Equal(t, "replacement", replaced.Name)
	assert.True(t, replaced.CreatedAt.Equal(created.CreatedAt), "upsert must preserve created_at")
	assert.True(t, replaced.UpdatedAt.After(replaced.CreatedAt), "created_at != updated_at signals identifier reuse")
}

func TestProgramUpsertInsertsWhenAbsent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p, err := st.UpsertProgram(ctx, testProgram(11, "fresh"))
	require.NoError(t, err)
	assert.True(t, p.CreatedAt.Equal(p.UpdatedAt))
}

func TestLinkUpsertPreservesCreatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)

	created, err := st.CreateLink(ctx, bpfreg.Link{
		ID:        100,
		ProgramID: 1,
		LinkType:  "xdp",
		Target:    "eth0",
		State:     bpfreg.LinkStatePreAttach,
	})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	replaced, err := st.UpsertLink(ctx, bpfreg.Link{
		ID:        100,
		ProgramID: 1,
		LinkType:  "xdp",
		Target:    "eth1",
		State:     bpfreg.LinkStateAttached,
	})
	require.NoError(t, err)
	assert.Equal(t, "eth1", replaced.Target)
	assert.Equal(t, bpfreg.LinkStateAttached, replaced.State)
	assert.True(t, replaced.CreatedAt.Equal(created.CreatedAt), "upsert must preserve created_at")
	assert.True(t, replaced.UpdatedAt.After(replaced.CreatedAt), "created_at != updated_at signals identifier reuse")
}

func TestMapUpsertPreservesCreatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateMap(ctx, bpfreg.Map{ID: 50, Name: "flow_stats", MapType: "hash"})
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	replaced, err := st.UpsertMap(ctx, bpfreg.Map{ID: 50, Name: "flow_stats_v2", MapType: "lru_hash"})
	require.NoError(t, err)
	assert.Equal(t, "flow_stats_v2", replaced.Name)
	assert.Equal(t, "lru_hash", replaced.MapType)
	assert.True(t, replaced.CreatedAt.Equal(created.CreatedAt), "upsert must preserve created_at")
	assert.True(t, replaced.UpdatedAt.After(replaced.CreatedAt), "created_at != updated_at signals identifier reuse")
}

func TestListProgramsNumericOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// String ordering would put "256" before "31"; byte ordering of
	// the fixed-width encoding must not.
	ids := []uint64{math.MaxUint64, 256, 1, uint64(1) << 63, 31, math.MaxUint32 + 1}
	for _, id := range ids {
		_, err := st.CreateProgram(ctx, testProgram(id, "prog"))
		require.NoError(t, err)
	}

	programs, err := st.ListPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, len(ids))

	want := []uint64{1, 31, 256, math.MaxUint32 + 1, uint64(1) << 63, math.MaxUint64}
	for i, p := range programs {
		assert.Equal(t, want[i], p.ID)
	}
}

func TestDeleteAllPrograms(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		_, err := st.CreateProgram(ctx, testProgram(id, "prog"))
		require.NoError(t, err)
	}

	n, err := st.DeleteAllPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	programs, err := st.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Empty(t, programs)
}

func TestLinkRequiresProgram(t *testing.T) {
	st := newTestStore(t)

	_, err := st.CreateLink(context.Background(), bpfreg.Link{
		ID:        100,
		ProgramID: 999,
		Target:    "eth0",
		State:     bpfreg.LinkStatePreAttach,
	})
	assert.ErrorIs(t, err, store.ErrForeignKey)
}

func TestLinkCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)

	l, err := st.CreateLink(ctx, bpfreg.Link{
		ID:        100,
		ProgramID: 1,
		LinkType:  "xdp",
		Target:    "eth0",
		State:     bpfreg.LinkStatePreAttach,
	})
	require.NoError(t, err)

	got, err := st.GetLink(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ProgramID)
	assert.Equal(t, "xdp", got.LinkType)
	assert.Equal(t, "eth0", got.Target)
	assert.Equal(t, bpfreg.LinkStatePreAttach, got.State)
	assert.True(t, got.CreatedAt.Equal(l.CreatedAt))

	got.State = bpfreg.LinkStateAttached
	_, err = st.UpdateLink(ctx, got)
	require.NoError(t, err)

	got, err = st.GetLink(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.LinkStateAttached, got.State)

	byProgram, err := st.ListLinksByProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, byProgram, 1)
	assert.Equal(t, uint64(100), byProgram[0].ID)

	deleted, err := st.DeleteLink(ctx, 100)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = st.GetLink(ctx, 100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProgramCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)
	_, err = st.CreateLink(ctx, bpfreg.Link{ID: 100, ProgramID: 1, Target: "eth0", State: bpfreg.LinkStatePreAttach})
	require.NoError(t, err)
	_, err = st.CreateMap(ctx, bpfreg.Map{ID: 200, Name: "counters"})
	require.NoError(t, err)
	require.NoError(t, st.CreateProgramMap(ctx, 1, 200))

	deleted, err := st.DeleteProgram(ctx, 1)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = st.GetLink(ctx, 100)
	assert.ErrorIs(t, err, store.ErrNotFound, "links cascade with their program")

	assocs, err := st.ListProgramMaps(ctx)
	require.NoError(t, err)
	assert.Empty(t, assocs, "program-map rows cascade with their program")

	// The map itself survives; only the association goes.
	_, err = st.GetMap(ctx, 200)
	assert.NoError(t, err)
}

func TestMapCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	keySize, valueSize, maxEntries := int32(4), int32(8), int32(1024)
	m, err := st.CreateMap(ctx, bpfreg.Map{
		ID:         50,
		Name:       "flow_stats",
		MapType:    "hash",
		KeySize:    &keySize,
		ValueSize:  &valueSize,
		MaxEntries: &maxEntries,
	})
	require.NoError(t, err)

	got, err := st.GetMap(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "flow_stats", got.Name)
	assert.Equal(t, "hash", got.MapType)
	require.NotNil(t, got.KeySize)
	assert.Equal(t, int32(4), *got.KeySize)
	require.NotNil(t, got.MaxEntries)
	assert.Equal(t, int32(1024), *got.MaxEntries)
	assert.True(t, got.CreatedAt.Equal(m.CreatedAt))

	got.Name = "flow_stats_v2"
	_, err = st.UpdateMap(ctx, got)
	require.NoError(t, err)

	got, err = st.GetMap(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "flow_stats_v2", got.Name)

	_, err = st.CreateMap(ctx, bpfreg.Map{ID: 50, Name: "dup"})
	assert.ErrorIs(t, err, store.ErrConflict)

	deleted, err := st.DeleteMap(ctx, 50)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestProgramMapAssociation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)
	_, err = st.CreateMap(ctx, bpfreg.Map{ID: 10, Name: "a"})
	require.NoError(t, err)
	_, err = st.CreateMap(ctx, bpfreg.Map{ID: 20, Name: "b"})
	require.NoError(t, err)

	require.NoError(t, st.CreateProgramMap(ctx, 1, 10))
	require.NoError(t, st.CreateProgramMap(ctx, 1, 20))

	err = st.CreateProgramMap(ctx, 1, 10)
	assert.ErrorIs(t, err, store.ErrConflict, "duplicate association")

	err = st.CreateProgramMap(ctx, 1, 999)
	assert.ErrorIs(t, err, store.ErrForeignKey, "dangling map reference")

	assocs, err := st.ListProgramMapsByProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, assocs, 2)
	assert.Equal(t, uint64(10), assocs[0].MapID)
	assert.Equal(t, uint64(20), assocs[1].MapID)

	// Deleting the map removes its association but not the program.
	deleted, err := st.DeleteMap(ctx, 10)
	require.NoError(t, err)
	require.True(t, deleted)

	assocs, err = st.ListProgramMapsByProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, uint64(20), assocs[0].MapID)
}

func TestAttachLink(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := testProgram(1, "prog")
	p.State = bpfreg.ProgramStateLoaded
	_, err := st.CreateProgram(ctx, p)
	require.NoError(t, err)

	l, err := st.AttachLink(ctx, 1, bpfreg.Link{ID: 100, LinkType: "xdp", Target: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, bpfreg.LinkStateAttached, l.State)
	assert.Equal(t, uint64(1), l.ProgramID)

	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStateAttached, got.State)
}

func TestAttachLinkMissingProgram(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.AttachLink(ctx, 999, bpfreg.Link{ID: 100, Target: "eth0"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	links, err := st.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestAttachLinkConflictLeavesProgramUnchanged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := testProgram(1, "prog")
	p.State = bpfreg.ProgramStateLoaded
	_, err := st.CreateProgram(ctx, p)
	require.NoError(t, err)
	_, err = st.CreateLink(ctx, bpfreg.Link{ID: 100, ProgramID: 1, Target: "eth0", State: bpfreg.LinkStatePreAttach})
	require.NoError(t, err)

	_, err = st.AttachLink(ctx, 1, bpfreg.Link{ID: 100, Target: "eth1"})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStateLoaded, got.State, "failed attach must not transition the program")

	link, err := st.GetLink(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "eth0", link.Target, "existing link untouched")
}

func TestAttachMap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)

	m, err := st.AttachMap(ctx, 1, bpfreg.Map{ID: 10, Name: "counters", MapType: "array"})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), m.ID)

	assocs, err := st.ListProgramMapsByProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, uint64(10), assocs[0].MapID)
}

func TestAttachMapRollsBackOnConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)
	_, err = st.CreateMap(ctx, bpfreg.Map{ID: 10, Name: "existing"})
	require.NoError(t, err)

	_, err = st.AttachMap(ctx, 1, bpfreg.Map{ID: 10, Name: "clash"})
	assert.ErrorIs(t, err, store.ErrConflict)

	assocs, err := st.ListProgramMapsByProgram(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, assocs, "failed attach must not leave an association")

	got, err := st.GetMap(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "existing", got.Name)
}

func TestRunInTransactionRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateProgram(ctx, testProgram(1, "prog"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = st.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.CreateLink(ctx, bpfreg.Link{ID: 100, ProgramID: 1, Target: "eth0", State: bpfreg.LinkStateAttached}); err != nil {
			return err
		}
		// The link is visible inside the transaction.
		if _, err := tx.GetLink(ctx, 100); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom, "fn's error must come back unchanged")

	_, err = st.GetLink(ctx, 100)
	assert.ErrorIs(t, err, store.ErrNotFound, "rolled-back link must not persist")
}

func TestTransactionRollsBackAfterConstraintFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := testProgram(1, "prog")
	p.State = bpfreg.ProgramStateLoaded
	_, err := st.CreateProgram(ctx, p)
	require.NoError(t, err)

	// The link insert succeeds, then the program update trips the
	// state CHECK constraint. The already-written link must roll
	// back with the transaction.
	err = st.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.CreateLink(ctx, bpfreg.Link{ID: 100, ProgramID: 1, Target: "eth0", State: bpfreg.LinkStateAttached}); err != nil {
			return err
		}
		p.State = bpfreg.ProgramState("bogus")
		_, err := tx.UpdateProgram(ctx, p)
		return err
	})
	require.Error(t, err)

	_, err = st.GetLink(ctx, 100)
	assert.ErrorIs(t, err, store.ErrNotFound, "partial write must not survive")

	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStateLoaded, got.State)
}

func TestRunInTransactionCommits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.CreateProgram(ctx, testProgram(1, "prog")); err != nil {
			return err
		}
		_, err := tx.CreateLink(ctx, bpfreg.Link{ID: 100, ProgramID: 1, Target: "eth0", State: bpfreg.LinkStateAttached})
		return err
	})
	require.NoError(t, err)

	_, err = st.GetProgram(ctx, 1)
	assert.NoError(t, err)
	_, err = st.GetLink(ctx, 100)
	assert.NoError(t, err)
}

func TestFileBackedStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "registry.db")
	ctx := context.Background()

	st, err := New(ctx, dbPath, testLogger(t))
	require.NoError(t, err)

	_, err = st.CreateProgram(ctx, testProgram(1, "persisted"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// Reopen and verify the row survived.
	st, err = New(ctx, dbPath, testLogger(t))
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}

// TestProgramLifecycle walks a program through the full pre_load ->
// loaded -> attached progression with a link on eth0 and a batch of
// maps registered in descending identifier order.
func TestProgramLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := testProgram(1, "lifecycle")
	created, err := st.CreateProgram(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStatePreLoad, created.State)

	created.State = bpfreg.ProgramStateLoaded
	created.KernelName = "lifecycle"
	_, err = st.UpdateProgram(ctx, created)
	require.NoError(t, err)

	_, err = st.AttachLink(ctx, 1, bpfreg.Link{ID: 100, LinkType: "xdp", Target: "eth0"})
	require.NoError(t, err)

	got, err := st.GetProgram(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, bpfreg.ProgramStateAttached, got.State)

	links, err := st.ListLinksByProgram(ctx, 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, bpfreg.LinkStateAttached, links[0].State)
	assert.Equal(t, "eth0", links[0].Target)

	// Register maps top-down from the 32-bit ceiling; listing must
	// come back ascending regardless of insertion order.
	for i := 0; i < 10; i++ {
		id := uint64(math.MaxUint32) - uint64(i)
		_, err := st.AttachMap(ctx, 1, bpfreg.Map{ID: id, Name: "m"})
		require.NoError(t, err)
	}

	maps, err := st.ListMaps(ctx)
	require.NoError(t, err)
	require.Len(t, maps, 10)
	for i := 1; i < len(maps); i++ {
		assert.Less(t, maps[i-1].ID, maps[i].ID)
	}

	assocs, err := st.ListProgramMapsByProgram(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, assocs, 10)
}
