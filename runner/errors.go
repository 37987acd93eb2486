package runner

import (
	"errors"
	"fmt"

	"github.com/MrBE4R/gitlab-ldap-sync/config"
	"github.com/MrBE4R/gitlab-ldap-sync/directory"
	"github.com/MrBE4R/gitlab-ldap-sync/target"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitBackend = 3
)

// BackendError is a failure to reach or authenticate against LDAP or GitLab.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}

	var backendErr *BackendError
	var bindErr *directory.BindError
	if errors.As(err, &backendErr) || errors.As(err, &bindErr) || errors.Is(err, target.ErrAuth) {
		return ExitBackend
	}
	return ExitFailure
}
