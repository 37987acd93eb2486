package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrBE4R/gitlab-ldap-sync/directory/ldaphelpers"
	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

// MemberResult is the outcome of resolving one member reference. Exactly one
// of Identity and Err is meaningful.
type MemberResult struct {
	Ref      string
	Identity identity.Identity
	Err      error
}

// memberResolver turns member DNs into identities, remembering each DN so a
// user that belongs to many groups is looked up once per run.
type memberResolver struct {
	dir         *Directory
	usersBaseDN string
	userFilter  string
	cache       map[string]MemberResult
}

func newMemberResolver(dir *Directory, usersBaseDN, userFilter string) *memberResolver {
	return &memberResolver{
		dir:         dir,
		usersBaseDN: usersBaseDN,
		userFilter:  userFilter,
		cache:       make(map[string]MemberResult),
	}
}

// ResolveAll returns one result per reference. A search failure aborts the
// whole call: a partial directory view would let cleanup remove members that
// still belong to the group.
func (m *memberResolver) ResolveAll(ctx context.Context, refs []string) ([]MemberResult, error) {
	results := make([]MemberResult, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := m.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (m *memberResolver) resolve(ctx context.Context, ref string) (MemberResult, error) {
	key := strings.ToLower(ref)
	if cached, ok := m.cache[key]; ok {
		return cached, nil
	}

	filter := ldaphelpers.MemberFilter(ref, m.userFilter).String()
	entries, err := m.dir.Search(ctx, m.usersBaseDN, filter, identity.MemberAttributes)
	if err != nil {
		return MemberResult{}, fmt.Errorf("resolve member %s: %w", ref, err)
	}

	result := MemberResult{Ref: ref}
	switch len(entries) {
	case 0:
		result.Err = ErrMemberNotFound
	default:
		if len(entries) > 1 {
			m.dir.logger.Warn().Str("member", ref).Int("matches", len(entries)).Msg("member matched several entries, using the first")
		}
		result.Identity, result.Err = identity.FromDirectory(ref, entries[0])
	}

	m.cache[key] = result
	return result, nil
}
