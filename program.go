// Package bpfreg defines the entities tracked by the registry: BPF
// programs, their attachment links, the maps they reference, and the
// program-map association. The store packages persist these types;
// identifier columns cross the storage boundary through the uintblob
// codec so that kernel-assigned IDs keep their numeric ordering
// under SQLite's byte-wise BLOB comparison.
package bpfreg

import "time"

// ProgramKind identifies the flavour of a BPF program. The set is
// closed; values are stored lowercase.
type ProgramKind string

const (
	ProgramKindXDP        ProgramKind = "xdp"
	ProgramKindTC         ProgramKind = "tc"
	ProgramKindTCX        ProgramKind = "tcx"
	ProgramKindTracepoint ProgramKind = "tracepoint"
	ProgramKindKprobe     ProgramKind = "kprobe"
	ProgramKindUprobe     ProgramKind = "uprobe"
	ProgramKindFentry     ProgramKind = "fentry"
	ProgramKindFexit      ProgramKind = "fexit"
)

// ParseProgramKind parses a kind string. Returns false for anything
// outside the closed set.
func ParseProgramKind(s string) (ProgramKind, bool) {
	switch k := ProgramKind(s); k {
	case ProgramKindXDP, ProgramKindTC, ProgramKindTCX, ProgramKindTracepoint,
		ProgramKindKprobe, ProgramKindUprobe, ProgramKindFentry, ProgramKindFexit:
		return k, true
	}
	return "", false
}

func (k ProgramKind) String() string { return string(k) }

// ProgramState tracks the lifecycle of a program. Transitions are
// linear: pre_load -> loaded -> attached, with no back-transitions.
type ProgramState string

const (
	// ProgramStatePreLoad is the initial state: the record exists
	// but the kernel has not accepted the program.
	ProgramStatePreLoad ProgramState = "pre_load"
	// ProgramStateLoaded means the kernel accepted the program
	// and the kernel_* introspection fields can be populated.
	ProgramStateLoaded ProgramState = "loaded"
	// ProgramStateAttached means at least one Link exists for the
	// program.
	ProgramStateAttached ProgramState = "attached"
)

// ParseProgramState parses a state string.
func ParseProgramState(s string) (ProgramState, bool) {
	switch st := ProgramState(s); st {
	case ProgramStatePreLoad, ProgramStateLoaded, ProgramStateAttached:
		return st, true
	}
	return "", false
}

func (s ProgramState) String() string { return string(s) }

// LocationType discriminates where the program binary comes from:
// a file on disk or a pullable image reference.
type LocationType string

const (
	LocationTypeFile  LocationType = "file"
	LocationTypeImage LocationType = "image"
)

// ParseLocationType parses a location type string.
func ParseLocationType(s string) (LocationType, bool) {
	switch l := LocationType(s); l {
	case LocationTypeFile, LocationTypeImage:
		return l, true
	}
	return "", false
}

func (l LocationType) String() string { return string(l) }

// Program is a kernel-loadable unit. The ID is the kernel-assigned
// program ID once loaded; before that the caller supplies one.
//
// Metadata and GlobalData are JSON-encoded objects, KernelMapIDs is
// a JSON-encoded array; NewProgram seeds their defaults. The
// kernel_* fields are introspection data reported by the kernel,
// populated only after a successful load by a separate refresh
// write rather than transactionally with the state transition.
type Program struct {
	ID          uint64       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Kind        ProgramKind  `json:"kind"`
	State       ProgramState `json:"state"`

	LocationType    LocationType `json:"location_type"`
	FilePath        string       `json:"file_path,omitempty"`
	ImageURL        string       `json:"image_url,omitempty"`
	ImagePullPolicy string       `json:"image_pull_policy,omitempty"`
	Username        string       `json:"username,omitempty"`
	Password        string       `json:"password,omitempty"`

	MapPinPath   string  `json:"map_pin_path"`
	MapOwnerID   *uint32 `json:"map_owner_id,omitempty"`
	ProgramBytes []byte  `json:"program_bytes"`
	Metadata     string  `json:"metadata"`
	GlobalData   string  `json:"global_data"`

	// Retprobe applies to kprobe/uprobe kinds, FnName to
	// fentry/fexit kinds.
	Retprobe *bool  `json:"retprobe,omitempty"`
	FnName   string `json:"fn_name,omitempty"`

	KernelName          string `json:"kernel_name,omitempty"`
	KernelProgramType   *int32 `json:"kernel_program_type,omitempty"`
	KernelLoadedAt      string `json:"kernel_loaded_at,omitempty"`
	KernelTag           string `json:"kernel_tag,omitempty"`
	KernelGPLCompatible *bool  `json:"kernel_gpl_compatible,omitempty"`
	KernelBTFID         *int32 `json:"kernel_btf_id,omitempty"`
	KernelBytesXlated   *int32 `json:"kernel_bytes_xlated,omitempty"`
	KernelJited         *bool  `json:"kernel_jited,omitempty"`
	KernelBytesJited    *int32 `json:"kernel_bytes_jited,omitempty"`
	KernelVerifiedInsns *int32 `json:"kernel_verified_insns,omitempty"`
	KernelMapIDs        string `json:"kernel_map_ids"`
	KernelBytesMemlock  *int32 `json:"kernel_bytes_memlock,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProgram returns a Program with the JSON-typed fields seeded to
// their empty-collection defaults and state pre_load.
func NewProgram() Program {
	return Program{
		State:        ProgramStatePreLoad,
		Metadata:     "{}",
		GlobalData:   "{}",
		KernelMapIDs: "[]",
		ProgramBytes: []byte{},
	}
}
