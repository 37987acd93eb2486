package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrBE4R/gitlab-ldap-sync/diff"
	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

func member(name string) identity.Identity {
	return identity.Identity{Username: name, DisplayName: name, Email: name + "@example.com", ExternalID: "cn=" + name}
}

func TestFindChanges(t *testing.T) {
	current := []identity.Identity{member("alice"), member("bob")}
	desired := []identity.Identity{member("bob"), member("carol"), member("dave")}

	changes := diff.FindChanges(current, desired)

	assert.Equal(t, []diff.MemberChange{
		{Kind: diff.Added, Identity: member("carol")},
		{Kind: diff.Added, Identity: member("dave")},
		{Kind: diff.Removed, Identity: member("alice")},
	}, changes)
}

func TestFindChanges_NoDifference(t *testing.T) {
	same := []identity.Identity{member("alice"), member("bob")}
	assert.Empty(t, diff.FindChanges(same, same))
	assert.Empty(t, diff.FindChanges(nil, nil))
}

func TestMissing_DropsRepeats(t *testing.T) {
	from := []identity.Identity{member("alice"), member("alice"), member("bob")}
	assert.Equal(t, []identity.Identity{member("alice"), member("bob")}, diff.Missing(nil, from))
}

func TestMissing_ComparesWholeRecord(t *testing.T) {
	renamed := member("alice")
	renamed.DisplayName = "Alice Renamed"

	missing := diff.Missing([]identity.Identity{member("alice")}, []identity.Identity{renamed})
	assert.Equal(t, []identity.Identity{renamed}, missing)
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "added", diff.Added.String())
	assert.Equal(t, "removed", diff.Removed.String())
	assert.Equal(t, "unknown", diff.ChangeKind(9).String())
}
