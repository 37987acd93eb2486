package directory

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// BindErrorKind classifies why connecting to the directory failed.
type BindErrorKind int

const (
	BindOther BindErrorKind = iota
	BindNetwork
	BindTLS
	BindCredentials
)

func (k BindErrorKind) String() string {
	switch k {
	case BindNetwork:
		return "network"
	case BindTLS:
		return "tls"
	case BindCredentials:
		return "credentials"
	default:
		return "other"
	}
}

// BindError is returned by Connect. It is always fatal to a run.
type BindError struct {
	Kind BindErrorKind
	URL  string
	Err  error
}

func (e *BindError) Error() string {
	switch e.Kind {
	case BindNetwork:
		return fmt.Sprintf("cannot reach LDAP server %s: %v", e.URL, e.Err)
	case BindTLS:
		return fmt.Sprintf("TLS negotiation with LDAP server %s failed: %v", e.URL, e.Err)
	case BindCredentials:
		return fmt.Sprintf("LDAP server %s rejected the bind credentials: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("LDAP bind to %s failed: %v", e.URL, e.Err)
	}
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ErrMemberNotFound is reported for a member reference with no matching user entry.
var ErrMemberNotFound = errors.New("member does not resolve to a user")

func classifyDialError(err error) BindErrorKind {
	if isTLSError(err) {
		return BindTLS
	}
	return BindNetwork
}

func classifyBindError(err error) BindErrorKind {
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials),
		ldap.IsErrorWithCode(err, ldap.LDAPResultInappropriateAuthentication),
		ldap.IsErrorWithCode(err, ldap.LDAPResultConfidentialityRequired):
		return BindCredentials
	case ldap.IsErrorWithCode(err, ldap.ErrorNetwork):
		if isTLSError(err) {
			return BindTLS
		}
		return BindNetwork
	default:
		return BindOther
	}
}

func isTLSError(err error) bool {
	for err != nil {
		var (
			verifyErr    *tls.CertificateVerificationError
			recordErr    tls.RecordHeaderError
			authorityErr x509.UnknownAuthorityError
			hostnameErr  x509.HostnameError
			invalidErr   x509.CertificateInvalidError
		)
		if errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &authorityErr) ||
			errors.As(err, &hostnameErr) || errors.As(err, &invalidErr) {
			return true
		}
		if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
			return true
		}

		var ldapErr *ldap.Error
		if !errors.As(err, &ldapErr) || ldapErr.Err == nil || ldapErr.Err == err {
			return false
		}
		err = ldapErr.Err
	}
	return false
}

// isTransient reports server-side conditions worth another search attempt on
// the same connection.
func isTransient(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded)
}
