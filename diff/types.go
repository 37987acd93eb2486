package diff

import "github.com/MrBE4R/gitlab-ldap-sync/identity"

// ChangeKind says which side of a comparison a member is missing from.
type ChangeKind int

const (
	// Added: present in the desired list, missing from the current one
	Added ChangeKind = iota
	// Removed: present in the current list, missing from the desired one
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// MemberChange represents one membership difference between two member lists.
type MemberChange struct {
	Kind     ChangeKind
	Identity identity.Identity
}
