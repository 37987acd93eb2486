// Package identity normalizes directory entries and GitLab user records into a
// single comparable shape.
package identity

import (
	"fmt"
	"strings"
)

// Directory attribute names read for every member.
const (
	AttrAccountName = "sAMAccountName"
	AttrUID         = "uid"
	AttrDisplayName = "displayName"
	AttrMail        = "mail"
)

// MemberAttributes is the attribute list requested when resolving a member DN.
var MemberAttributes = []string{AttrUID, AttrAccountName, AttrMail, AttrDisplayName}

// Identity is the canonical person record. Two identities are equal only when
// every field matches; membership comparison relies on that.
type Identity struct {
	Username    string
	DisplayName string
	Email       string
	ExternalID  string
}

// Attributes is satisfied by *ldap.Entry.
type Attributes interface {
	GetAttributeValue(attribute string) string
}

// MissingAttributeError reports a directory entry that lacks a required attribute.
type MissingAttributeError struct {
	Ref       string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("entry %s has no %s attribute", e.Ref, e.Attribute)
}

// FromDirectory builds an Identity from a resolved directory user entry.
// ref is the raw member reference as it appears on the group; its lower-cased
// form becomes ExternalID so cleanup can later test it against the users base.
func FromDirectory(ref string, attrs Attributes) (Identity, error) {
	username := attrs.GetAttributeValue(AttrAccountName)
	if username == "" {
		username = attrs.GetAttributeValue(AttrUID)
	}
	if username == "" {
		return Identity{}, &MissingAttributeError{Ref: ref, Attribute: AttrAccountName + "/" + AttrUID}
	}

	displayName := attrs.GetAttributeValue(AttrDisplayName)
	if displayName == "" {
		return Identity{}, &MissingAttributeError{Ref: ref, Attribute: AttrDisplayName}
	}

	email := attrs.GetAttributeValue(AttrMail)
	if email == "" {
		return Identity{}, &MissingAttributeError{Ref: ref, Attribute: AttrMail}
	}

	return Identity{
		Username:    username,
		DisplayName: displayName,
		Email:       email,
		ExternalID:  strings.ToLower(ref),
	}, nil
}

// FromTarget builds an Identity from a GitLab user. Only the first external
// identity is considered; a user without one gets an empty ExternalID.
func FromTarget(username, name, email string, externUIDs []string) Identity {
	var externalID string
	if len(externUIDs) > 0 {
		externalID = externUIDs[0]
	}
	return Identity{
		Username:    username,
		DisplayName: name,
		Email:       email,
		ExternalID:  externalID,
	}
}

// ManagedBy reports whether the identity originates from the given users base.
// The match is a case-insensitive substring test on ExternalID.
func (i Identity) ManagedBy(usersBaseDN string) bool {
	if usersBaseDN == "" {
		return false
	}
	return strings.Contains(strings.ToLower(i.ExternalID), strings.ToLower(usersBaseDN))
}

func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.DisplayName, i.Username)
}

// SubAddress rewrites email so that it carries the username as a sub-address:
// local@domain becomes local+gl-<username>@domain.
func SubAddress(email, username string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("cannot rewrite malformed email address %q", email)
	}
	return email[:at] + "+gl-" + username + email[at:], nil
}
