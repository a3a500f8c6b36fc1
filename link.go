package bpfreg

import "time"

// LinkState tracks the attachment lifecycle of a link:
// pre_attach -> attached.
type LinkState string

const (
	LinkStatePreAttach LinkState = "pre_attach"
	LinkStateAttached  LinkState = "attached"
)

// ParseLinkState parses a link state string.
func ParseLinkState(s string) (LinkState, bool) {
	switch st := LinkState(s); st {
	case LinkStatePreAttach, LinkStateAttached:
		return st, true
	}
	return "", false
}

func (s LinkState) String() string { return string(s) }

// Link is an attachment of a Program to a kernel hook point. The ID
// is the kernel-assigned link ID and is immutable once created.
// ProgramID is a foreign-key reference, not an ownership handle: the
// owning Program row controls the link's lifetime via cascade.
type Link struct {
	ID        uint64    `json:"id"`
	ProgramID uint64    `json:"program_id"`
	LinkType  string    `json:"link_type,omitempty"`
	Target    string    `json:"target,omitempty"`
	State     LinkState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
