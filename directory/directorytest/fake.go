// Package directorytest provides an in-memory stand-in for an LDAP server.
package directorytest

import (
	"crypto/tls"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"github.com/MrBE4R/gitlab-ldap-sync/directory"
)

// Server is a fake directory. Group searches return every group under the
// search base; user searches return the user whose DN appears in the filter.
type Server struct {
	mu sync.Mutex

	Groups []*ldap.Entry
	Users  []*ldap.Entry

	// Errors injected into the corresponding calls
	DialErr     error
	StartTLSErr error
	BindErr     error
	SearchErr   error

	BoundAs       string
	StartedTLS    bool
	Requests      []*ldap.SearchRequest
	UserSearches  int
	GroupSearches int
	Closed        bool
}

// AddGroup registers a group entry with the given members.
func (s *Server) AddGroup(dn, name, description string, members ...string) {
	attrs := map[string][]string{
		"name":   {name},
		"cn":     {name},
		"member": members,
	}
	if description != "" {
		attrs["description"] = []string{description}
	}
	s.Groups = append(s.Groups, ldap.NewEntry(dn, attrs))
}

// AddUser registers a user entry. Empty values are left out.
func (s *Server) AddUser(dn, accountName, displayName, mail string) {
	attrs := map[string][]string{}
	if accountName != "" {
		attrs["sAMAccountName"] = []string{accountName}
	}
	if displayName != "" {
		attrs["displayName"] = []string{displayName}
	}
	if mail != "" {
		attrs["mail"] = []string{mail}
	}
	s.Users = append(s.Users, ldap.NewEntry(dn, attrs))
}

// Dialer returns a directory.Dialer connected to s.
func (s *Server) Dialer() directory.Dialer {
	return func(string, *tls.Config) (directory.Conn, error) {
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		return &conn{server: s}, nil
	}
}

type conn struct {
	server *Server
}

func (c *conn) StartTLS(*tls.Config) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.StartTLSErr != nil {
		return c.server.StartTLSErr
	}
	c.server.StartedTLS = true
	return nil
}

func (c *conn) Bind(username, _ string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.BindErr != nil {
		return c.server.BindErr
	}
	c.server.BoundAs = username
	return nil
}

func (c *conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.Requests = append(c.server.Requests, req)
	c.server.UserSearches++
	if c.server.SearchErr != nil {
		return nil, c.server.SearchErr
	}

	result := &ldap.SearchResult{}
	for _, user := range c.server.Users {
		if !under(user.DN, req.BaseDN) {
			continue
		}
		if strings.Contains(req.Filter, "(distinguishedName="+ldap.EscapeFilter(user.DN)+")") {
			result.Entries = append(result.Entries, user)
		}
	}
	return result, nil
}

func (c *conn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.Requests = append(c.server.Requests, req)
	c.server.GroupSearches++
	if c.server.SearchErr != nil {
		return nil, c.server.SearchErr
	}

	result := &ldap.SearchResult{}
	for _, group := range c.server.Groups {
		if under(group.DN, req.BaseDN) {
			result.Entries = append(result.Entries, group)
		}
	}
	return result, nil
}

func (c *conn) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.Closed = true
	return nil
}

func under(dn, base string) bool {
	return strings.HasSuffix(strings.ToLower(dn), strings.ToLower(base))
}
