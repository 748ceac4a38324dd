package ucenter

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cast"
	"github.com/uptrace/bun"
)

// LoginState names the steps of a login
type LoginState int

const (
	LoginValidating LoginState = iota
	LoginResolvingLookup
	LoginCheckingStatus
	LoginCheckingThrottle
	LoginVerifyingCredential
	LoginCommittingSession
	LoginSuccess
	LoginRejected
	LoginFaulted
)

func (s LoginState) String() string {
	switch s {
	case LoginValidating:
		return "validating"
	case LoginResolvingLookup:
		return "resolving_lookup"
	case LoginCheckingStatus:
		return "checking_status"
	case LoginCheckingThrottle:
		return "checking_throttle"
	case LoginVerifyingCredential:
		return "verifying_credential"
	case LoginCommittingSession:
		return "committing_session"
	case LoginSuccess:
		return "success"
	case LoginRejected:
		return "rejected"
	case LoginFaulted:
		return "faulted"
	}
	return "unknown"
}

// LoginInput is a login request
type LoginInput struct {
	LoginType IdentityType `json:"login_type"`
	Account   string       `json:"account"`
	Password  string       `json:"password"`
}

const (
	attemptActionLogin         = "login"
	attemptActionPasswordError = "password error"
)

// Authenticator verifies credentials and commits login sessions
type Authenticator struct {
	repo     RepositoryManager
	codec    *Codec
	throttle *LoginThrottle
	rules    fieldRules
	now      func() time.Time
	activity activityRecorder
	logger   Logger
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(repo RepositoryManager, codec *Codec, throttle *LoginThrottle, cfg Config, now func() time.Time, sink ActivitySink, logger Logger) *Authenticator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Authenticator{
		repo:     repo,
		codec:    codec,
		throttle: throttle,
		rules:    newFieldRules(cfg),
		now:      now,
		activity: activityRecorder{sink: normalizeActivitySink(sink), now: now, logger: logger},
		logger:   logger,
	}
}

func (a *Authenticator) enter(state LoginState, args ...any) {
	a.logger.Debug("login state", append([]any{"state", state.String()}, args...)...)
}

// Login authenticates input. source is the caller address and may be empty,
// userAgent is only recorded. On success the account carries the fresh
// login time, address and token.
func (a *Authenticator) Login(ctx context.Context, input LoginInput, source, userAgent string) (*Account, error) {
	a.enter(LoginValidating, "login_type", int(input.LoginType))
	input.Account = strings.TrimSpace(input.Account)
	if err := a.validate(input); err != nil {
		a.enter(LoginRejected, "reason", Reason(err))
		return nil, err
	}

	a.enter(LoginResolvingLookup)
	account, err := a.repo.Accounts().GetByIdentity(ctx, input.LoginType, input.Account)
	if err != nil {
		if isNotFound(err) {
			a.logger.Info("login rejected, account not found", "login_type", int(input.LoginType), "ip", source)
			a.enter(LoginRejected, "reason", "account not found")
			return nil, ErrInvalidCredentials
		}
		a.enter(LoginFaulted)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account").
			WithTextCode(TextCodeLoginFault)
	}

	a.enter(LoginCheckingStatus, "uid", account.ID, "status", account.Status.String())
	if err := statusRejection(account.Status); err != nil {
		a.enter(LoginRejected, "uid", account.ID, "reason", Reason(err))
		return nil, err
	}

	a.enter(LoginCheckingThrottle, "uid", account.ID)
	if err := a.throttle.CheckAccount(ctx, account.ID); err != nil {
		return nil, a.throttleOutcome(account.ID, err)
	}
	if err := a.throttle.CheckSource(ctx, source); err != nil {
		return nil, a.throttleOutcome(account.ID, err)
	}

	a.enter(LoginVerifyingCredential, "uid", account.ID)
	if !a.codec.MatchCredential(input.Password, account.Salt, account.Password) {
		a.recordFailure(ctx, account, source, userAgent)
		a.logger.Info("login rejected, password mismatch", "uid", account.ID, "ip", source)
		a.enter(LoginRejected, "uid", account.ID, "reason", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	a.enter(LoginCommittingSession, "uid", account.ID)
	session := LoginSession{
		Time:  a.now().UTC(),
		IP:    source,
		Token: a.codec.GenerateLoginToken(account.ID, source),
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.repo.Accounts().TrackSuccessfulLoginTx(ctx, tx, account.ID, session); err != nil {
			if isNotFound(err) {
				return a.statusChangedTx(ctx, tx, account.ID, err)
			}
			return err
		}
		return a.repo.LoginAttempts().AppendTx(ctx, tx, &LoginAttempt{
			AccountID: account.ID,
			Type:      AttemptLoginSuccess,
			Action:    attemptActionLogin,
			IP:        source,
			UserAgent: userAgent,
			CreatedAt: session.Time,
		})
	})
	if err != nil {
		if IsRejection(err) {
			a.logger.Info("login rejected, account changed before commit", "uid", account.ID, "ip", source, "reason", Reason(err))
			a.enter(LoginRejected, "uid", account.ID, "reason", Reason(err))
			return nil, err
		}
		a.logger.Error("login commit failed", "uid", account.ID, "error", err)
		a.enter(LoginFaulted, "uid", account.ID)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "login failed, please try again").
			WithTextCode(TextCodeLoginFault)
	}

	account.LoginTime = &session.Time
	account.LoginIP = session.IP
	account.LoginToken = session.Token
	account.UpdatedAt = session.Time

	a.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: cast.ToString(account.ID), Type: "account"},
		AccountID: account.ID,
		Metadata:  map[string]any{"ip": source, "login_type": int(input.LoginType)},
	})

	a.enter(LoginSuccess, "uid", account.ID)
	return account, nil
}

func (a *Authenticator) validate(input LoginInput) error {
	if _, ok := input.LoginType.column(); !ok {
		return ErrUnknownLoginType
	}

	errs := validation.Errors{
		"account":  validation.Validate(input.Account, validation.Required, a.rules.identityRule(input.LoginType)),
		"password": validation.Validate(input.Password, passwordRules()...),
	}
	return toValidationError(errs.Filter())
}

func (a *Authenticator) throttleOutcome(uid int64, err error) error {
	if IsFault(err) {
		a.logger.Error("login throttle check failed", "uid", uid, "error", err)
		a.enter(LoginFaulted, "uid", uid)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "login failed, please try again").
			WithTextCode(TextCodeLoginFault)
	}
	a.enter(LoginRejected, "uid", uid, "reason", Reason(err))
	return err
}

// recordFailure appends the failure record. It never changes the outcome
// of the login, a failed write is only logged.
func (a *Authenticator) recordFailure(ctx context.Context, account *Account, source, userAgent string) {
	err := a.repo.LoginAttempts().Append(ctx, &LoginAttempt{
		AccountID: account.ID,
		Type:      AttemptLoginFailure,
		Action:    attemptActionPasswordError,
		IP:        source,
		UserAgent: userAgent,
	})
	if err != nil {
		a.logger.Error("failed to record login failure", "uid", account.ID, "ip", source, "error", err)
	}

	a.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{ID: cast.ToString(account.ID), Type: "account"},
		AccountID: account.ID,
		Metadata:  map[string]any{"ip": source, "reason": attemptActionPasswordError},
	})
}

// statusChangedTx explains a commit that found no active account: the
// account left the active status, or disappeared, after it was checked.
func (a *Authenticator) statusChangedTx(ctx context.Context, tx bun.IDB, id int64, cause error) error {
	current, err := a.repo.Accounts().GetByIDTx(ctx, tx, id)
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidCredentials
		}
		return err
	}
	if rejection := statusRejection(current.Status); rejection != nil {
		return rejection
	}
	return cause
}

func statusRejection(status AccountStatus) error {
	switch status {
	case AccountStatusActive:
		return nil
	case AccountStatusPending:
		return ErrAccountPending
	case AccountStatusDisabled:
		return ErrAccountDisabled
	case AccountStatusRejected:
		return ErrAccountRejected
	}
	return ErrAccountStatusUnknown
}
