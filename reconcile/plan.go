// Package reconcile turns a directory snapshot and a GitLab snapshot into an
// ordered plan of changes. It performs no I/O.
package reconcile

import (
	"fmt"

	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

// Kind is the type of change an Action describes.
type Kind int

const (
	CreateGroup Kind = iota + 1
	CreateUser
	AddMember
	RemoveMember
)

func (k Kind) String() string {
	switch k {
	case CreateGroup:
		return "create_group"
	case CreateUser:
		return "create_user"
	case AddMember:
		return "add_member"
	case RemoveMember:
		return "remove_member"
	default:
		return "unknown"
	}
}

// Action is one planned change. It identifies groups by name and users by
// username; the executor looks both up again before acting.
type Action struct {
	Kind  Kind
	Group string

	// Description is set on CreateGroup when descriptions are propagated
	Description string

	// Member is the subject of CreateUser, AddMember and RemoveMember
	Member identity.Identity

	// Provider is the GitLab identity provider given to CreateUser
	Provider string
}

func (a Action) String() string {
	switch a.Kind {
	case CreateGroup:
		return fmt.Sprintf("%s %q", a.Kind, a.Group)
	case CreateUser:
		return fmt.Sprintf("%s %s", a.Kind, a.Member.Username)
	default:
		return fmt.Sprintf("%s %s in %q", a.Kind, a.Member.Username, a.Group)
	}
}

// Plan is the ordered list of actions for one run: every CreateGroup, then
// additions group by group, then removals group by group.
type Plan struct {
	Actions []Action
}

func (p *Plan) add(a Action) {
	p.Actions = append(p.Actions, a)
}

// Empty reports whether there is nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Count returns the number of actions of the given kind.
func (p *Plan) Count(kind Kind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
