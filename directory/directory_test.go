package directory_test

import (
	"context"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrBE4R/gitlab-ldap-sync/directory"
	"github.com/MrBE4R/gitlab-ldap-sync/directory/directorytest"
	"github.com/MrBE4R/gitlab-ldap-sync/retry"
)

func connect(t *testing.T, server *directorytest.Server, opts directory.Options) (*directory.Directory, error) {
	t.Helper()
	if opts.URL == "" {
		opts.URL = "ldap://dc.example.com"
	}
	return directory.Connect(opts, server.Dialer(), zerolog.Nop())
}

func TestConnect_Binds(t *testing.T) {
	server := &directorytest.Server{}

	dir, err := connect(t, server, directory.Options{BindDN: "cn=sync", StartTLS: true})
	require.NoError(t, err)
	assert.Equal(t, "cn=sync", server.BoundAs)
	assert.True(t, server.StartedTLS)

	require.NoError(t, dir.Close())
	assert.True(t, server.Closed)
}

func TestConnect_TypedFailures(t *testing.T) {
	tests := []struct {
		name   string
		server *directorytest.Server
		opts   directory.Options
		kind   directory.BindErrorKind
	}{
		{
			name:   "unreachable",
			server: &directorytest.Server{DialErr: ldap.NewError(ldap.ErrorNetwork, errors.New("dial tcp: connection refused"))},
			kind:   directory.BindNetwork,
		},
		{
			name:   "untrusted certificate",
			server: &directorytest.Server{DialErr: ldap.NewError(ldap.ErrorNetwork, x509.UnknownAuthorityError{})},
			kind:   directory.BindTLS,
		},
		{
			name:   "start tls refused",
			server: &directorytest.Server{StartTLSErr: errors.New("unsupported extended operation")},
			opts:   directory.Options{StartTLS: true},
			kind:   directory.BindTLS,
		},
		{
			name:   "bad password",
			server: &directorytest.Server{BindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))},
			kind:   directory.BindCredentials,
		},
		{
			name:   "connection dropped during bind",
			server: &directorytest.Server{BindErr: ldap.NewError(ldap.ErrorNetwork, errors.New("EOF"))},
			kind:   directory.BindNetwork,
		},
		{
			name:   "other bind failure",
			server: &directorytest.Server{BindErr: ldap.NewError(ldap.LDAPResultOperationsError, errors.New("boom"))},
			kind:   directory.BindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := connect(t, tt.server, tt.opts)

			var bindErr *directory.BindError
			require.ErrorAs(t, err, &bindErr)
			assert.Equal(t, tt.kind, bindErr.Kind, bindErr.Error())
			assert.Equal(t, "ldap://dc.example.com", bindErr.URL)
		})
	}
}

func TestConnect_NoURL(t *testing.T) {
	_, err := directory.Connect(directory.Options{}, (&directorytest.Server{}).Dialer(), zerolog.Nop())
	var bindErr *directory.BindError
	require.ErrorAs(t, err, &bindErr)
}

func TestSearchPaged_RetriesBusyServer(t *testing.T) {
	server := &directorytest.Server{SearchErr: ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))}
	dir, err := connect(t, server, directory.Options{Retry: retry.Policy{MaxAttempts: 2}})
	require.NoError(t, err)

	_, err = dir.SearchPaged(context.Background(), "dc=example,dc=com", "(objectClass=group)", nil)
	assert.Error(t, err)
	assert.Equal(t, 2, server.GroupSearches)
}

func TestBindErrorKindString(t *testing.T) {
	assert.Equal(t, "network", directory.BindNetwork.String())
	assert.Equal(t, "tls", directory.BindTLS.String())
	assert.Equal(t, "credentials", directory.BindCredentials.String())
	assert.Equal(t, "other", directory.BindOther.String())
}
