package bpfreg

import "time"

// Map is a kernel map resource. Maps are created independently of
// programs and associated to zero or more of them through
// ProgramMap rows.
type Map struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	MapType    string    `json:"map_type,omitempty"`
	KeySize    *int32    `json:"key_size,omitempty"`
	ValueSize  *int32    `json:"value_size,omitempty"`
	MaxEntries *int32    `json:"max_entries,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProgramMap is the many-to-many association between a Program and
// a Map. It has no identity of its own; both sides cascade on
// delete.
type ProgramMap struct {
	ProgramID uint64 `json:"program_id"`
	MapID     uint64 `json:"map_id"`
}
