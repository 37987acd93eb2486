package snapshot

import (
	"fmt"
	"time"

	"github.com/MrBE4R/gitlab-ldap-sync/identity"
)

// NewGroup creates an empty group.
func NewGroup(name, description string) *Group {
	return &Group{
		Name:        name,
		Description: description,
		index:       make(map[identity.Identity]struct{}),
	}
}

// AddMember appends id unless an identical record is already present.
// It returns false for duplicates.
func (g *Group) AddMember(id identity.Identity) bool {
	if g.index == nil {
		g.index = make(map[identity.Identity]struct{})
	}
	if _, ok := g.index[id]; ok {
		return false
	}
	g.index[id] = struct{}{}
	g.Members = append(g.Members, id)
	return true
}

// Contains reports whether the exact identity record is a member.
func (g *Group) Contains(id identity.Identity) bool {
	if g == nil {
		return false
	}
	_, ok := g.index[id]
	return ok
}

// New creates an empty snapshot for source.
func New(source Source) *Snapshot {
	return &Snapshot{
		Source: source,
		byName: make(map[string]int),
	}
}

// AddGroup registers g. Group names must be unique within a snapshot.
func (s *Snapshot) AddGroup(g *Group) error {
	if s.sealed {
		return fmt.Errorf("%s snapshot is sealed", s.Source)
	}
	if _, exists := s.byName[g.Name]; exists {
		return fmt.Errorf("duplicate group %q in %s snapshot", g.Name, s.Source)
	}
	s.byName[g.Name] = len(s.Groups)
	s.Groups = append(s.Groups, g)
	s.Names = append(s.Names, g.Name)
	return nil
}

// Seal marks the snapshot as captured.
func (s *Snapshot) Seal() *Snapshot {
	s.sealed = true
	s.CapturedAt = time.Now()
	return s
}

// Has reports whether a group with the given name exists.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Group returns the named group, or nil.
func (s *Snapshot) Group(name string) *Group {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return s.Groups[i]
}

// Usernames returns every distinct member username across all groups.
func (s *Snapshot) Usernames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, g := range s.Groups {
		for _, m := range g.Members {
			if _, ok := seen[m.Username]; ok {
				continue
			}
			seen[m.Username] = struct{}{}
			names = append(names, m.Username)
		}
	}
	return names
}
