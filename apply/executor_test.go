package apply_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrBE4R/gitlab-ldap-sync/apply"
	"github.com/MrBE4R/gitlab-ldap-sync/identity"
	"github.com/MrBE4R/gitlab-ldap-sync/reconcile"
	"github.com/MrBE4R/gitlab-ldap-sync/target"
	"github.com/MrBE4R/gitlab-ldap-sync/target/targettest"
)

var (
	alice = identity.Identity{Username: "alice", DisplayName: "Alice Liddell", Email: "a@b.com", ExternalID: "cn=alice,ou=users,dc=example,dc=com"}
	bob   = identity.Identity{Username: "bob", DisplayName: "Bob Builder", Email: "bob@example.com", ExternalID: "cn=bob,ou=users,dc=example,dc=com"}
)

type recorder struct {
	results []apply.Result
	onCall  func()
}

func (r *recorder) Record(_ context.Context, result apply.Result) {
	r.results = append(r.results, result)
	if r.onCall != nil {
		r.onCall()
	}
}

func newExecutor(server *targettest.Server, rec *recorder) *apply.Executor {
	executor := apply.New(server, apply.Options{Visibility: "private", AccessLevel: 30}, zerolog.Nop())
	if rec != nil {
		executor.WithRecorder(rec)
	}
	return executor
}

func plan(actions ...reconcile.Action) *reconcile.Plan {
	return &reconcile.Plan{Actions: actions}
}

func createGroup(name, description string) reconcile.Action {
	return reconcile.Action{Kind: reconcile.CreateGroup, Group: name, Description: description}
}

func createUser(member identity.Identity) reconcile.Action {
	return reconcile.Action{Kind: reconcile.CreateUser, Member: member, Provider: "ldapmain"}
}

func addMember(group string, member identity.Identity) reconcile.Action {
	return reconcile.Action{Kind: reconcile.AddMember, Group: group, Member: member}
}

func removeMember(group string, member identity.Identity) reconcile.Action {
	return reconcile.Action{Kind: reconcile.RemoveMember, Group: group, Member: member}
}

func outcomes(results []apply.Result) []apply.Outcome {
	var out []apply.Outcome
	for _, r := range results {
		out = append(out, r.Outcome)
	}
	return out
}

func TestExecute_AppliesPlan(t *testing.T) {
	server := targettest.New()
	server.AddUser("bob", "Bob Builder", "bob@example.com", bob.ExternalID)
	ops := server.AddGroup("Ops", "")
	server.AddMember(ops.ID, server.User("bob").ID, 30)
	rec := &recorder{}

	summary, err := newExecutor(server, rec).Execute(context.Background(), plan(
		createGroup("Platform Team", "Runs the platform"),
		createUser(alice),
		addMember("Platform Team", alice),
		removeMember("Ops", bob),
	))
	require.NoError(t, err)

	assert.Equal(t, apply.Summary{Applied: 4}, summary)
	group := server.Group("Platform Team")
	require.NotNil(t, group)
	assert.Equal(t, "Platform-Team", group.Path)
	assert.Equal(t, "Runs the platform", group.Description)

	created := server.User("alice")
	require.NotNil(t, created)
	assert.Equal(t, []string{alice.ExternalID}, created.ExternUIDs)
	assert.Equal(t, "a@b.com", created.Email)

	assert.Equal(t, []string{"alice"}, server.Members("Platform Team"))
	assert.Equal(t, 30, server.AccessLevel("Platform Team", "alice"))
	assert.Empty(t, server.Members("Ops"))
	assert.Len(t, rec.results, 4)
}

func TestExecute_RetriesEmailConflictWithSubAddress(t *testing.T) {
	server := targettest.New()
	server.AddUser("alice.old", "Old Alice", "a@b.com", "")
	server.AddGroup("Engineering", "")

	summary, err := newExecutor(server, nil).Execute(context.Background(), plan(
		createUser(alice),
		addMember("Engineering", alice),
	))
	require.NoError(t, err)

	assert.Equal(t, apply.Summary{Applied: 2}, summary)
	assert.Equal(t, 2, server.Count("create user"))
	require.NotNil(t, server.User("alice"))
	assert.Equal(t, "a+gl-alice@b.com", server.User("alice").Email)
	assert.Equal(t, []string{"alice"}, server.Members("Engineering"))
}

func TestExecute_SecondConflictFailsOnlyThatMember(t *testing.T) {
	server := targettest.New()
	server.AddUser("alice.old", "Old Alice", "a@b.com", "")
	server.AddUser("alice.older", "Older Alice", "a+gl-alice@b.com", "")
	server.AddUser("bob", "Bob Builder", "bob@example.com", bob.ExternalID)
	server.AddGroup("Engineering", "")
	rec := &recorder{}

	summary, err := newExecutor(server, rec).Execute(context.Background(), plan(
		createUser(alice),
		addMember("Engineering", alice),
		addMember("Engineering", bob),
	))
	require.NoError(t, err)

	assert.Equal(t, 2, server.Count("create user"), "exactly one retry")
	assert.Equal(t, apply.Summary{Applied: 1, Skipped: 1, Failed: 1}, summary)
	assert.Equal(t, []apply.Outcome{apply.Failed, apply.Skipped, apply.Applied}, outcomes(rec.results))
	assert.ErrorIs(t, rec.results[0].Err, target.ErrEmailTaken)
	assert.Equal(t, []string{"bob"}, server.Members("Engineering"))
	assert.Nil(t, server.User("alice"))
}

func TestExecute_ContinuesAfterFailures(t *testing.T) {
	server := targettest.New()
	server.AddUser("alice", "Alice Liddell", "a@b.com", alice.ExternalID)
	server.AddUser("bob", "Bob Builder", "bob@example.com", bob.ExternalID)
	server.AddGroup("Engineering", "")
	server.Fail["add group member"] = []error{&target.APIError{Op: "add group member", StatusCode: http.StatusForbidden, Message: "403 Forbidden"}}
	rec := &recorder{}

	summary, err := newExecutor(server, rec).Execute(context.Background(), plan(
		addMember("Engineering", alice),
		addMember("Missing", bob),
		addMember("Engineering", identity.Identity{Username: "ghost"}),
		addMember("Engineering", bob),
	))
	require.NoError(t, err)

	assert.Equal(t, []apply.Outcome{apply.Failed, apply.Skipped, apply.Skipped, apply.Applied}, outcomes(rec.results))
	assert.Equal(t, "group not found in GitLab", rec.results[1].Reason)
	assert.Equal(t, "user not found in GitLab", rec.results[2].Reason)
	assert.Equal(t, apply.Summary{Applied: 1, Skipped: 2, Failed: 1}, summary)
	assert.Equal(t, []string{"bob"}, server.Members("Engineering"))
}

func TestExecute_ChecksLiveStateBeforeActing(t *testing.T) {
	server := targettest.New()
	server.AddUser("alice", "Alice Liddell", "a@b.com", alice.ExternalID)
	eng := server.AddGroup("Engineering", "")
	server.AddMember(eng.ID, server.User("alice").ID, 30)
	rec := &recorder{}

	summary, err := newExecutor(server, rec).Execute(context.Background(), plan(
		createGroup("Engineering", ""),
		createUser(alice),
		addMember("Engineering", alice),
		removeMember("Engineering", bob),
	))
	require.NoError(t, err)

	assert.Equal(t, apply.Summary{Skipped: 4}, summary)
	assert.Zero(t, server.Count("create group"))
	assert.Zero(t, server.Count("create user"))
	assert.Equal(t, "already a member", rec.results[2].Reason)
}

func TestExecute_KeepsMemberStillDeclaredUnderAnotherRecord(t *testing.T) {
	server := targettest.New()
	server.AddUser("bob", "Bob Builder", "bob+gl-bob@example.com", bob.ExternalID)
	server.AddUser("carol", "Carol", "carol@example.com", "cn=carol,ou=users,dc=example,dc=com")
	eng := server.AddGroup("Engineering", "")
	server.AddMember(eng.ID, server.User("bob").ID, 30)
	server.AddMember(eng.ID, server.User("carol").ID, 30)
	rec := &recorder{}

	stored := bob
	stored.Email = "bob+gl-bob@example.com"
	carol := identity.Identity{Username: "carol", DisplayName: "Carol", Email: "carol@example.com", ExternalID: "cn=carol,ou=users,dc=example,dc=com"}

	summary, err := newExecutor(server, rec).Execute(context.Background(), plan(
		addMember("Engineering", bob),
		removeMember("Engineering", stored),
		removeMember("Engineering", carol),
	))
	require.NoError(t, err)

	assert.Equal(t, apply.Summary{Applied: 1, Skipped: 2}, summary)
	assert.Equal(t, "already a member", rec.results[0].Reason)
	assert.Equal(t, "username still declared by the directory group", rec.results[1].Reason)
	assert.Equal(t, []string{"bob"}, server.Members("Engineering"))
}

func TestExecute_StopsOnCancellation(t *testing.T) {
	server := targettest.New()
	server.AddGroup("Engineering", "")
	server.AddUser("alice", "Alice Liddell", "a@b.com", alice.ExternalID)
	server.AddUser("bob", "Bob Builder", "bob@example.com", bob.ExternalID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onCall: cancel}

	_, err := newExecutor(server, rec).Execute(ctx, plan(
		addMember("Engineering", alice),
		addMember("Engineering", bob),
	))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, rec.results, 1)
	assert.Equal(t, []string{"alice"}, server.Members("Engineering"))
}
