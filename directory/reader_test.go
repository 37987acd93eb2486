package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrBE4R/gitlab-ldap-sync/directory"
	"github.com/MrBE4R/gitlab-ldap-sync/directory/directorytest"
	"github.com/MrBE4R/gitlab-ldap-sync/directory/ldaphelpers"
	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

const (
	groupsBase = "OU=Groups,DC=example,DC=com"
	usersBase  = "OU=Users,DC=example,DC=com"
	aliceDN    = "CN=Alice,OU=Users,DC=example,DC=com"
	bobDN      = "CN=Bob,OU=Users,DC=example,DC=com"
)

func newServer() *directorytest.Server {
	server := &directorytest.Server{}
	server.AddUser(aliceDN, "alice", "Alice Liddell", "alice@example.com")
	server.AddUser(bobDN, "bob", "Bob Builder", "bob@example.com")
	server.AddGroup("CN=Engineering,"+groupsBase, "Engineering", "Builds things", aliceDN, bobDN)
	server.AddGroup("CN=Sales,"+groupsBase, "Sales", "", bobDN)
	return server
}

func newReader(t *testing.T, server *directorytest.Server, opts directory.ReaderOptions) *directory.Reader {
	t.Helper()
	dir, err := directory.Connect(directory.Options{URL: "ldap://dc.example.com"}, server.Dialer(), zerolog.Nop())
	require.NoError(t, err)
	if opts.GroupsBaseDN == "" {
		opts.GroupsBaseDN = groupsBase
	}
	if opts.UsersBaseDN == "" {
		opts.UsersBaseDN = usersBase
	}
	return directory.NewReader(dir, opts, zerolog.Nop())
}

func TestRead_BuildsSnapshot(t *testing.T) {
	server := newServer()

	snap, err := newReader(t, server, directory.ReaderOptions{}).Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Engineering", "Sales"}, snap.Names)
	eng := snap.Group("Engineering")
	require.NotNil(t, eng)
	assert.Empty(t, eng.Description, "description is only read when enabled")
	assert.Equal(t, []identity.Identity{
		{Username: "alice", DisplayName: "Alice Liddell", Email: "alice@example.com", ExternalID: "cn=alice,ou=users,dc=example,dc=com"},
		{Username: "bob", DisplayName: "Bob Builder", Email: "bob@example.com", ExternalID: "cn=bob,ou=users,dc=example,dc=com"},
	}, eng.Members)

	// bob is shared by both groups and looked up once
	assert.Equal(t, 2, server.UserSearches)
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestRead_Description(t *testing.T) {
	snap, err := newReader(t, newServer(), directory.ReaderOptions{WithDescription: true}).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Builds things", snap.Group("Engineering").Description)
}

func TestRead_SkipsUnresolvableMembers(t *testing.T) {
	server := newServer()
	server.AddUser("CN=Ghost,OU=Users,DC=example,DC=com", "ghost", "", "ghost@example.com")
	server.AddGroup("CN=Ops,"+groupsBase, "Ops", "",
		aliceDN,
		"CN=Ghost,OU=Users,DC=example,DC=com",           // no displayName
		"CN=Gone,OU=Users,DC=example,DC=com",            // no entry
		"CN=Svc,OU=ServiceAccounts,DC=example,DC=com", // outside the users base
	)

	snap, err := newReader(t, server, directory.ReaderOptions{}).Read(context.Background())
	require.NoError(t, err)

	ops := snap.Group("Ops")
	require.NotNil(t, ops)
	require.Len(t, ops.Members, 1)
	assert.Equal(t, "alice", ops.Members[0].Username)
}

func TestRead_SelectorAndUserFilter(t *testing.T) {
	server := newServer()
	reader := newReader(t, server, directory.ReaderOptions{
		Selector:   ldaphelpers.GroupSelector{Prefix: "Eng"},
		UserFilter: "(employeeType=staff)",
	})

	_, err := reader.Read(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, server.Requests)
	assert.Equal(t, "(&(objectClass=group)(cn=Eng*))", server.Requests[0].Filter)
	assert.Equal(t, groupsBase, server.Requests[0].BaseDN)
	assert.Contains(t, server.Requests[1].Filter, "(employeeType=staff)")
	assert.Equal(t, usersBase, server.Requests[1].BaseDN)
}

func TestRead_ConflictingSelectors(t *testing.T) {
	server := newServer()
	reader := newReader(t, server, directory.ReaderOptions{
		Selector: ldaphelpers.GroupSelector{Attribute: "gitlabSync", Marker: "gitlab_sync", Prefix: "gl-"},
	})

	_, err := reader.Read(context.Background())
	assert.ErrorIs(t, err, ldaphelpers.ErrConflictingSelectors)
	assert.Empty(t, server.Requests)
}

func TestRead_SearchFailureIsReturned(t *testing.T) {
	server := newServer()
	server.SearchErr = errors.New("server unavailable")

	_, err := newReader(t, server, directory.ReaderOptions{}).Read(context.Background())
	assert.Error(t, err)
}

func TestRead_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReader(t, newServer(), directory.ReaderOptions{}).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
