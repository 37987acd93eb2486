// Package apply carries out a reconciliation plan against GitLab.
package apply

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/identity"
	"github.com/MrBE4R/gitlab-ldap-sync/reconcile"
	"github.com/MrBE4R/gitlab-ldap-sync/target"
)

// Outcome classifies what happened to one action.
type Outcome string

const (
	Applied Outcome = "applied"
	// Skipped: nothing to do once live state was looked at, or a
	// prerequisite failed earlier
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Result is the outcome of a single action.
type Result struct {
	Action  reconcile.Action
	Outcome Outcome
	Reason  string
	Err     error
}

// Recorder receives every result as soon as it is known.
type Recorder interface {
	Record(ctx context.Context, result Result)
}

// Summary counts results by outcome.
type Summary struct {
	Applied int
	Skipped int
	Failed  int
}

func (s *Summary) add(o Outcome) {
	switch o {
	case Applied:
		s.Applied++
	case Skipped:
		s.Skipped++
	case Failed:
		s.Failed++
	}
}

type Options struct {
	// Visibility of created groups
	Visibility string
	// AccessLevel granted to added members
	AccessLevel int
}

// Executor applies plans. A failing action is logged and the plan goes on;
// only cancellation of the context stops it early.
type Executor struct {
	api      target.API
	opts     Options
	recorder Recorder
	logger   zerolog.Logger

	// failedUsers holds usernames whose creation failed during this run
	failedUsers map[string]error
	// declared holds the group/username pairs the plan adds
	declared map[memberKey]struct{}
}

type memberKey struct {
	group    string
	username string
}

func keyOf(action reconcile.Action) memberKey {
	return memberKey{group: action.Group, username: strings.ToLower(action.Member.Username)}
}

func New(api target.API, opts Options, logger zerolog.Logger) *Executor {
	return &Executor{
		api:    api,
		opts:   opts,
		logger: logger,
	}
}

// WithRecorder sets where results are reported.
func (e *Executor) WithRecorder(r Recorder) *Executor {
	e.recorder = r
	return e
}

// Execute runs the plan's actions in order. Groups and users are looked up
// again right before each change.
func (e *Executor) Execute(ctx context.Context, plan *reconcile.Plan) (Summary, error) {
	var summary Summary
	e.failedUsers = make(map[string]error)
	e.declared = make(map[memberKey]struct{})
	for _, action := range plan.Actions {
		if action.Kind == reconcile.AddMember {
			e.declared[keyOf(action)] = struct{}{}
		}
	}

	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := e.apply(ctx, action)
		if err := ctx.Err(); err != nil && result.Outcome == Failed {
			return summary, err
		}

		summary.add(result.Outcome)
		e.log(result)
		if e.recorder != nil {
			e.recorder.Record(ctx, result)
		}
	}

	e.logger.Info().
		Int("applied", summary.Applied).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Sync finished")
	return summary, nil
}

func (e *Executor) apply(ctx context.Context, action reconcile.Action) Result {
	switch action.Kind {
	case reconcile.CreateGroup:
		return e.createGroup(ctx, action)
	case reconcile.CreateUser:
		return e.createUser(ctx, action)
	case reconcile.AddMember:
		return e.addMember(ctx, action)
	case reconcile.RemoveMember:
		return e.removeMember(ctx, action)
	default:
		return failed(action, fmt.Errorf("unknown action kind %d", action.Kind))
	}
}

func (e *Executor) createGroup(ctx context.Context, action reconcile.Action) Result {
	_, err := e.api.FindGroup(ctx, action.Group)
	switch {
	case err == nil:
		return skipped(action, "group already exists")
	case !errors.Is(err, target.ErrNotFound):
		return failed(action, err)
	}

	_, err = e.api.CreateGroup(ctx, target.GroupSpec{
		Name:        action.Group,
		Path:        target.Slug(action.Group),
		Description: action.Description,
		Visibility:  e.opts.Visibility,
	})
	if err != nil {
		return failed(action, err)
	}
	return applied(action)
}

func (e *Executor) createUser(ctx context.Context, action reconcile.Action) Result {
	member := action.Member

	_, err := e.api.FindUser(ctx, member.Username)
	switch {
	case err == nil:
		return skipped(action, "user already exists")
	case !errors.Is(err, target.ErrNotFound):
		e.failedUsers[member.Username] = err
		return failed(action, err)
	}

	spec := target.UserSpec{
		Username:  member.Username,
		Name:      member.DisplayName,
		Email:     member.Email,
		ExternUID: member.ExternalID,
		Provider:  action.Provider,
	}
	_, err = e.api.CreateUser(ctx, spec)
	if errors.Is(err, target.ErrEmailTaken) {
		spec.Email, err = identity.SubAddress(member.Email, member.Username)
		if err == nil {
			e.logger.Warn().
				Str("user", member.Username).
				Str("email", member.Email).
				Str("retry_email", spec.Email).
				Msg("Email already taken, retrying with a sub-address")
			_, err = e.api.CreateUser(ctx, spec)
		}
	}
	if err != nil {
		e.failedUsers[member.Username] = err
		return failed(action, err)
	}
	return applied(action)
}

func (e *Executor) addMember(ctx context.Context, action reconcile.Action) Result {
	if cause, ok := e.failedUsers[action.Member.Username]; ok {
		return Result{Action: action, Outcome: Skipped, Reason: "user could not be created", Err: cause}
	}

	group, user, result, ok := e.lookup(ctx, action)
	if !ok {
		return result
	}

	err := e.api.AddGroupMember(ctx, group.ID, user.ID, e.opts.AccessLevel)
	if hasStatus(err, http.StatusConflict) {
		return skipped(action, "already a member")
	}
	if err != nil {
		return failed(action, err)
	}
	return applied(action)
}

// removeMember leaves a member in place when the same plan adds that username
// to the group: the directory still lists it under a different record.
func (e *Executor) removeMember(ctx context.Context, action reconcile.Action) Result {
	if _, ok := e.declared[keyOf(action)]; ok {
		return skipped(action, "username still declared by the directory group")
	}

	group, user, result, ok := e.lookup(ctx, action)
	if !ok {
		return result
	}

	err := e.api.RemoveGroupMember(ctx, group.ID, user.ID)
	if errors.Is(err, target.ErrNotFound) {
		return skipped(action, "no longer a member")
	}
	if err != nil {
		return failed(action, err)
	}
	return applied(action)
}

// lookup fetches the live group and user an action refers to. When either is
// missing it returns the result to report instead.
func (e *Executor) lookup(ctx context.Context, action reconcile.Action) (*target.Group, *target.User, Result, bool) {
	group, err := e.api.FindGroup(ctx, action.Group)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, nil, Result{Action: action, Outcome: Skipped, Reason: "group not found in GitLab", Err: err}, false
		}
		return nil, nil, failed(action, err), false
	}

	user, err := e.api.FindUser(ctx, action.Member.Username)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, nil, Result{Action: action, Outcome: Skipped, Reason: "user not found in GitLab", Err: err}, false
		}
		return nil, nil, failed(action, err), false
	}
	return group, user, Result{}, true
}

func (e *Executor) log(result Result) {
	var event *zerolog.Event
	switch result.Outcome {
	case Applied:
		event = e.logger.Info()
	case Skipped:
		event = e.logger.Info()
		if result.Err != nil {
			event = e.logger.Warn().Err(result.Err)
		}
	default:
		event = e.logger.Error().Err(result.Err)
	}

	action := result.Action
	event = event.Str("action", action.Kind.String()).Str("outcome", string(result.Outcome))
	if action.Group != "" {
		event = event.Str("group", action.Group)
	}
	if action.Member.Username != "" {
		event = event.Str("user", action.Member.Username)
	}
	if result.Reason != "" {
		event = event.Str("reason", result.Reason)
	}
	event.Msg(action.String())
}

func applied(action reconcile.Action) Result {
	return Result{Action: action, Outcome: Applied}
}

func skipped(action reconcile.Action, reason string) Result {
	return Result{Action: action, Outcome: Skipped, Reason: reason}
}

func failed(action reconcile.Action, err error) Result {
	return Result{Action: action, Outcome: Failed, Err: err}
}

func hasStatus(err error, status int) bool {
	var apiErr *target.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
