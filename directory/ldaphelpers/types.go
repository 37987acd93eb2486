package ldaphelpers

const (
	AllGroupObjects = "(objectClass=group)"
	AllUserObjects  = "(objectClass=user)"
)
