package ldaphelpers

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	return string(f)
}

// Raw wraps an already formed filter fragment. An empty fragment yields nil so
// optional fragments can be passed straight to And.
func Raw(fragment string) Filter {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}
	if !strings.HasPrefix(fragment, "(") {
		fragment = "(" + fragment + ")"
	}
	return rawFilter(fragment)
}

// Logical operators
type andFilter struct {
	parts []Filter
}

// And joins the non-nil filters. A single part is returned as is.
func And(filters ...Filter) Filter {
	parts := compact(filters)
	if len(parts) == 1 {
		return parts[0]
	}
	return andFilter{parts: parts}
}
func (f andFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(&" + strings.Join(parts, "") + ")"
}

type orFilter struct {
	parts []Filter
}

func Or(filters ...Filter) Filter {
	return orFilter{parts: compact(filters)}
}
func (f orFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(|" + strings.Join(parts, "") + ")"
}

type notFilter struct {
	part Filter
}

func Not(f Filter) Filter {
	return notFilter{part: f}
}
func (f notFilter) String() string {
	return "(!" + f.part.String() + ")"
}

// Eq matches attr against value; value is escaped.
func Eq(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + ldap.EscapeFilter(value) + ")")
}

// Prefix matches values of attr starting with prefix; prefix is escaped.
func Prefix(attr, prefix string) Filter {
	return rawFilter("(" + attr + "=" + ldap.EscapeFilter(prefix) + "*)")
}

func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

func compact(filters []Filter) []Filter {
	parts := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			parts = append(parts, f)
		}
	}
	return parts
}
