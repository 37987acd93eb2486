package ldaphelpers

import "errors"

// GroupSelector chooses which directory groups are synchronised. At most one
// of Attribute and Prefix may be set; with neither, every group is selected.
type GroupSelector struct {
	// Attribute must hold Marker on a selected group
	Attribute string
	Marker    string

	// Prefix must start a selected group's cn
	Prefix string
}

var ErrConflictingSelectors = errors.New("group attribute and group prefix selectors are mutually exclusive")

// GroupFilter builds the group search filter for s.
func GroupFilter(s GroupSelector) (Filter, error) {
	groups := rawFilter(AllGroupObjects)
	switch {
	case s.Attribute != "" && s.Prefix != "":
		return nil, ErrConflictingSelectors
	case s.Attribute != "":
		return And(groups, Eq(s.Attribute, s.Marker)), nil
	case s.Prefix != "":
		return And(groups, Prefix("cn", s.Prefix)), nil
	default:
		return groups, nil
	}
}

// MemberFilter finds the user entry whose DN is dn. AD exposes the DN as
// distinguishedName, other servers as dn; both are tried. extra narrows the
// match further and may be empty.
func MemberFilter(dn, extra string) Filter {
	return And(
		Or(Eq("distinguishedName", dn), Eq("dn", dn)),
		rawFilter(AllUserObjects),
		Raw(extra),
	)
}
