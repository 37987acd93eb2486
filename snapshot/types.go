package snapshot

import (
	"time"

	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

// Source names the system a snapshot was read from.
type Source string

const (
	SourceDirectory Source = "ldap"
	SourceTarget    Source = "gitlab"
)

// Group is one group as seen by a single system at capture time.
type Group struct {
	// Name is compared across systems by plain string equality
	Name string

	// Description is only populated by the directory reader, and only when
	// description propagation is enabled
	Description string

	// Members holds each identity once, in the order it was first seen
	Members []identity.Identity

	index map[identity.Identity]struct{}
}

// Snapshot is a point-in-time read of every group in one system.
// Once Seal is called it must not be modified.
type Snapshot struct {
	// Source is the system the groups were read from
	Source Source

	// Groups in the order the system returned them
	Groups []*Group

	// Names runs parallel to Groups
	Names []string

	// CapturedAt records when the read finished
	CapturedAt time.Time

	byName map[string]int
	sealed bool
}
