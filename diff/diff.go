package diff

import "github.com/MrBE4R/gitlab-ldap-sync/identity"

// FindChanges compares the current member list against the desired one and
// returns additions (in desired order) followed by removals (in current order).
// Identities are compared as whole records.
func FindChanges(current, desired []identity.Identity) []MemberChange {
	var changes []MemberChange

	for _, id := range Missing(current, desired) {
		changes = append(changes, MemberChange{Kind: Added, Identity: id})
	}
	for _, id := range Missing(desired, current) {
		changes = append(changes, MemberChange{Kind: Removed, Identity: id})
	}

	return changes
}

// Missing returns the identities of from that are absent from in, keeping the
// order of from and dropping repeats.
func Missing(in, from []identity.Identity) []identity.Identity {
	present := make(map[identity.Identity]struct{}, len(in))
	for _, id := range in {
		present[id] = struct{}{}
	}

	var missing []identity.Identity
	for _, id := range from {
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}
