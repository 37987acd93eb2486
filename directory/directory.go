// Package directory reads groups and their members from the authoritative
// LDAP directory.
package directory

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/retry"
)

// Conn is the subset of *ldap.Conn the directory uses.
type Conn interface {
	StartTLS(config *tls.Config) error
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(searchRequest *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens a connection to url.
type Dialer func(url string, tlsConfig *tls.Config) (Conn, error)

// DialURL is the production Dialer.
func DialURL(url string, tlsConfig *tls.Config) (Conn, error) {
	conn, err := ldap.DialURL(url, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Options struct {
	URL      string
	BindDN   string
	Password string
	StartTLS bool
	// SkipVerify disables certificate verification for ldaps and StartTLS
	SkipVerify bool
	PageSize   uint32
	Retry      retry.Policy
}

// Directory is a bound connection to the LDAP server.
type Directory struct {
	url      string
	conn     Conn
	pageSize uint32
	retrier  *retry.Retrier
	logger   zerolog.Logger
}

// Connect dials and binds. Every failure is returned as a *BindError.
func Connect(opts Options, dial Dialer, logger zerolog.Logger) (*Directory, error) {
	if opts.URL == "" {
		return nil, &BindError{Kind: BindOther, Err: fmt.Errorf("no LDAP URL configured")}
	}
	if dial == nil {
		dial = DialURL
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: opts.SkipVerify}

	conn, err := dial(opts.URL, tlsConfig)
	if err != nil {
		return nil, &BindError{Kind: classifyDialError(err), URL: opts.URL, Err: err}
	}

	if opts.StartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, &BindError{Kind: BindTLS, URL: opts.URL, Err: err}
		}
	}

	if err := conn.Bind(opts.BindDN, opts.Password); err != nil {
		conn.Close()
		return nil, &BindError{Kind: classifyBindError(err), URL: opts.URL, Err: err}
	}

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = 500
	}

	logger.Info().Str("url", opts.URL).Str("bind_dn", opts.BindDN).Msg("Bound to LDAP")

	return &Directory{
		url:      opts.URL,
		conn:     conn,
		pageSize: pageSize,
		retrier:  retry.New(opts.Retry, isTransient, logger),
		logger:   logger,
	}, nil
}

// Close unbinds and closes the connection.
func (d *Directory) Close() error {
	return d.conn.Close()
}

// SearchPaged runs a paged subtree search under base.
func (d *Directory) SearchPaged(ctx context.Context, base, filter string, attributes []string) ([]*ldap.Entry, error) {
	request := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		nil,
	)

	var result *ldap.SearchResult
	err := d.retrier.Do(ctx, "ldap paged search", func() error {
		var err error
		result, err = d.conn.SearchWithPaging(request, d.pageSize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("LDAP search under %s with %s failed: %w", base, filter, err)
	}
	return result.Entries, nil
}

// Search runs a single, unpaged subtree search under base.
func (d *Directory) Search(ctx context.Context, base, filter string, attributes []string) ([]*ldap.Entry, error) {
	request := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		nil,
	)

	var result *ldap.SearchResult
	err := d.retrier.Do(ctx, "ldap search", func() error {
		var err error
		result, err = d.conn.Search(request)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("LDAP search under %s with %s failed: %w", base, filter, err)
	}
	return result.Entries, nil
}
