package directory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/directory/ldaphelpers"
	"github.com/MrBE4R/gitlab-ldap-sync/snapshot"
)

// Group attributes read from the directory.
const (
	attrName        = "name"
	attrCN          = "cn"
	attrMember      = "member"
	attrDescription = "description"
)

type ReaderOptions struct {
	GroupsBaseDN string
	UsersBaseDN  string
	Selector     ldaphelpers.GroupSelector
	// UserFilter is an optional extra filter fragment for member lookups
	UserFilter      string
	WithDescription bool
}

// Reader captures the directory snapshot.
type Reader struct {
	dir    *Directory
	opts   ReaderOptions
	logger zerolog.Logger
}

func NewReader(dir *Directory, opts ReaderOptions, logger zerolog.Logger) *Reader {
	return &Reader{
		dir:    dir,
		opts:   opts,
		logger: logger,
	}
}

// Read searches the groups base for the selected groups and resolves every
// member. Members that do not resolve to a usable user are logged and left
// out; search failures are returned.
func (r *Reader) Read(ctx context.Context) (*snapshot.Snapshot, error) {
	filter, err := ldaphelpers.GroupFilter(r.opts.Selector)
	if err != nil {
		return nil, err
	}

	attributes := []string{attrName, attrCN, attrMember}
	if r.opts.WithDescription {
		attributes = append(attributes, attrDescription)
	}

	r.logger.Info().Str("base", r.opts.GroupsBaseDN).Str("filter", filter.String()).Msg("Getting all groups from LDAP")

	entries, err := r.dir.SearchPaged(ctx, r.opts.GroupsBaseDN, filter.String(), attributes)
	if err != nil {
		return nil, err
	}

	resolver := newMemberResolver(r.dir, r.opts.UsersBaseDN, r.opts.UserFilter)
	snap := snapshot.New(snapshot.SourceDirectory)

	for _, entry := range entries {
		name := entry.GetAttributeValue(attrName)
		if name == "" {
			name = entry.GetAttributeValue(attrCN)
		}
		if name == "" {
			r.logger.Warn().Str("dn", entry.DN).Msg("group has no name, skipping")
			continue
		}

		var description string
		if r.opts.WithDescription {
			description = entry.GetAttributeValue(attrDescription)
		}
		group := snapshot.NewGroup(name, description)

		results, err := resolver.ResolveAll(ctx, entry.GetAttributeValues(attrMember))
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
		for _, result := range results {
			if result.Err != nil {
				r.logger.Warn().Err(result.Err).Str("group", name).Str("member", result.Ref).Msg("skipping unresolvable member")
				continue
			}
			group.AddMember(result.Identity)
		}

		if err := snap.AddGroup(group); err != nil {
			r.logger.Warn().Err(err).Str("dn", entry.DN).Msg("skipping group")
			continue
		}
		r.logger.Debug().Str("group", name).Int("members", len(group.Members)).Msg("Read LDAP group")
	}

	r.logger.Info().Strs("groups", snap.Names).Msg("Groups currently in LDAP")
	return snap.Seal(), nil
}
