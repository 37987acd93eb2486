package reconcile

import (
	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/diff"
	"github.com/MrBE4R/gitlab-ldap-sync/identity"
	"github.com/MrBE4R/gitlab-ldap-sync/snapshot"
)

// Users answers whether a username exists in GitLab.
type Users interface {
	Has(username string) bool
}

// Options tunes what the reconciler plans.
type Options struct {
	// UsersBaseDN marks a GitLab member as directory-managed when its
	// external UID contains it, ignoring case
	UsersBaseDN string

	// CreateUsers plans the creation of members unknown to GitLab
	CreateUsers bool

	// PropagateDescription copies the directory description onto new groups
	PropagateDescription bool

	// Provider is the identity provider name attached to created users
	Provider string
}

// Reconciler turns a directory and a GitLab snapshot into a Plan.
type Reconciler struct {
	opts   Options
	logger zerolog.Logger
}

// New returns a Reconciler for opts.
func New(opts Options, logger zerolog.Logger) *Reconciler {
	return &Reconciler{opts: opts, logger: logger}
}

// Plan compares the two snapshots and returns the changes that bring GitLab
// in line with the directory. Neither snapshot is modified.
//
// Members are compared as whole identity records. GitLab members of a synced
// group are removed only when their external UID lies under the users base;
// GitLab groups absent from the directory are never touched.
func (r *Reconciler) Plan(directory, gitlab *snapshot.Snapshot, users Users) *Plan {
	plan := &Plan{}
	r.planGroups(plan, directory, gitlab)
	r.planAdditions(plan, directory, gitlab, users)
	r.planRemovals(plan, directory, gitlab)

	r.logger.Info().
		Int("create_group", plan.Count(CreateGroup)).
		Int("create_user", plan.Count(CreateUser)).
		Int("add_member", plan.Count(AddMember)).
		Int("remove_member", plan.Count(RemoveMember)).
		Msg("Plan ready")
	return plan
}

func (r *Reconciler) planGroups(plan *Plan, directory, gitlab *snapshot.Snapshot) {
	for _, group := range directory.Groups {
		if gitlab.Has(group.Name) {
			r.logger.Debug().Str("group", group.Name).Msg("Group already exists in GitLab")
			continue
		}

		action := Action{Kind: CreateGroup, Group: group.Name}
		if r.opts.PropagateDescription {
			action.Description = group.Description
		}
		r.logger.Info().Str("group", group.Name).Msg("Group does not exist in GitLab, creating")
		plan.add(action)
	}
}

func (r *Reconciler) planAdditions(plan *Plan, directory, gitlab *snapshot.Snapshot, users Users) {
	created := make(map[string]struct{})

	for _, group := range directory.Groups {
		var current *snapshot.Group
		if gitlab.Has(group.Name) {
			current = gitlab.Group(group.Name)
		}
		logger := r.logger.With().Str("group", group.Name).Logger()

		for _, change := range diff.FindChanges(membersOf(current), group.Members) {
			if change.Kind != diff.Added {
				continue
			}
			member := change.Identity
			log := logger.With().Str("user", member.Username).Logger()

			if _, ok := created[member.Username]; !ok && !users.Has(member.Username) {
				if !r.opts.CreateUsers {
					log.Info().Msg("User does not exist in GitLab, skipping")
					continue
				}
				log.Info().Msg("User does not exist in GitLab, creating")
				plan.add(Action{Kind: CreateUser, Member: member, Provider: r.opts.Provider})
				created[member.Username] = struct{}{}
			}

			log.Info().Str("name", member.DisplayName).Msg("User is member in LDAP but not in GitLab, adding")
			plan.add(Action{Kind: AddMember, Group: group.Name, Member: member})
		}
	}
}

func (r *Reconciler) planRemovals(plan *Plan, directory, gitlab *snapshot.Snapshot) {
	for _, group := range gitlab.Groups {
		logger := r.logger.With().Str("group", group.Name).Logger()
		if !directory.Has(group.Name) {
			logger.Debug().Msg("Not an LDAP group, skipping")
			continue
		}
		desired := directory.Group(group.Name)

		for _, change := range diff.FindChanges(group.Members, desired.Members) {
			if change.Kind != diff.Removed {
				continue
			}
			member := change.Identity
			log := logger.With().Str("user", member.Username).Logger()

			if !member.ManagedBy(r.opts.UsersBaseDN) {
				log.Debug().Msg("Not an LDAP user, skipping")
				continue
			}
			log.Info().Str("name", member.DisplayName).Msg("User no longer in LDAP group, removing")
			plan.add(Action{Kind: RemoveMember, Group: group.Name, Member: member})
		}
	}
}

func membersOf(g *snapshot.Group) []identity.Identity {
	if g == nil {
		return nil
	}
	return g.Members
}
