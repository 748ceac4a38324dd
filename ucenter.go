package ucenter

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// UCenter is the account center facade. It holds no mutable state besides
// its collaborators and is safe for concurrent use.
type UCenter struct {
	cfg      Config
	repo     RepositoryManager
	codec    *Codec
	auth     *Authenticator
	accounts *AccountStore
	realname *RealnameReview
	open     *OpenAccountBinder
	logger   Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger         Logger
	loggerProvider LoggerProvider
	now            func() time.Time
	sink           ActivitySink
	smOptions      []StateMachineOption
}

// WithLogger sets the fallback logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLoggerProvider sets the provider used for component loggers.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

// WithClock injects the clock used for timestamps and lockout windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithActivitySink sets the audit event sink.
func WithActivitySink(sink ActivitySink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithStateMachineOptions forwards options to the account state machine.
func WithStateMachineOptions(opts ...StateMachineOption) Option {
	return func(o *options) {
		o.smOptions = append(o.smOptions, opts...)
	}
}

// New builds a UCenter on db. The schema must exist, see CreateSchema.
func New(db *bun.DB, cfg Config, opts ...Option) (*UCenter, error) {
	if db == nil {
		return nil, fmt.Errorf("ucenter: database is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ucenter: invalid config: %w", err)
	}

	o := &options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	provider, logger := ResolveLogger("ucenter", o.loggerProvider, o.logger)
	component := func(name string) Logger {
		_, l := ResolveLogger("ucenter."+name, provider, logger)
		return l
	}

	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	codec.now = o.now

	repo := NewRepositoryManager(db, cfg.Tables, o.now)
	repo.MustValidate()

	smOpts := append([]StateMachineOption{
		WithStateMachineClock(o.now),
		WithStateMachineActivitySink(o.sink),
		WithStateMachineLogger(component("state_machine")),
	}, o.smOptions...)
	sm := NewAccountStateMachine(repo.Accounts(), repo, smOpts...)

	throttle := NewLoginThrottle(repo.LoginAttempts(), cfg.LoginThrottle, o.now, component("throttle"))

	return &UCenter{
		cfg:      cfg,
		repo:     repo,
		codec:    codec,
		auth:     NewAuthenticator(repo, codec, throttle, cfg, o.now, o.sink, component("authenticator")),
		accounts: NewAccountStore(repo, codec, sm, cfg, o.now, o.sink, component("accounts")),
		realname: NewRealnameReview(repo, cfg, o.now, o.sink, component("realname")),
		open:     NewOpenAccountBinder(repo, o.now, o.sink, component("open_accounts")),
		logger:   logger,
	}, nil
}

// Migrate creates the schema for the configured tables.
func (u *UCenter) Migrate(ctx context.Context, db bun.IDB) error {
	return CreateSchema(ctx, db, u.cfg.Tables)
}

// Config returns a copy of the configuration.
func (u *UCenter) Config() Config { return u.cfg }

// Repositories exposes the underlying repositories.
func (u *UCenter) Repositories() RepositoryManager { return u.repo }

// Codec exposes the credential and invite code codec.
func (u *UCenter) Codec() *Codec { return u.codec }

// Login authenticates a login request.
func (u *UCenter) Login(ctx context.Context, input LoginInput, ip, userAgent string) (*Account, error) {
	return u.auth.Login(ctx, input, ip, userAgent)
}

// Register creates an account from a self service registration.
func (u *UCenter) Register(ctx context.Context, input RegisterInput, ip string) (int64, error) {
	return u.accounts.Register(ctx, input, ip)
}

// Add creates an account on behalf of an administrator.
func (u *UCenter) Add(ctx context.Context, input AccountInput, useDefaultPassword bool, ip string) (int64, error) {
	return u.accounts.Add(ctx, input, useDefaultPassword, ip)
}

// Edit updates profile fields.
func (u *UCenter) Edit(ctx context.Context, edit AccountEdit) error {
	return u.accounts.Edit(ctx, edit)
}

// ChangePassword replaces the login or pay password.
func (u *UCenter) ChangePassword(ctx context.Context, change PasswordChange, checkOld, payPassword bool) error {
	return u.accounts.ChangePassword(ctx, change, checkOld, payPassword)
}

// ChangeBindAccount replaces the mobile or email of an account.
func (u *UCenter) ChangeBindAccount(ctx context.Context, id int64, value string, bind BindType) error {
	return u.accounts.ChangeBindAccount(ctx, id, value, bind)
}

// ChangeStatus moves an account to a new status.
func (u *UCenter) ChangeStatus(ctx context.Context, actor ActorRef, id int64, status AccountStatus, opts ...TransitionOption) (*Account, error) {
	return u.accounts.ChangeStatus(ctx, actor, id, status, opts...)
}

// GetInviteCode returns the invite code of an account.
func (u *UCenter) GetInviteCode(id int64) (string, error) {
	return u.accounts.GetInviteCode(id)
}

// ParseInviteCode returns the account id behind an invite code.
func (u *UCenter) ParseInviteCode(code string) (int64, error) {
	return u.accounts.ParseInviteCode(code)
}

// SubmitRealname stores a first real-name submission.
func (u *UCenter) SubmitRealname(ctx context.Context, uid int64, input RealnameInput) (*RealnameAuth, error) {
	return u.realname.Submit(ctx, uid, input)
}

// ResubmitRealname replaces a rejected real-name submission.
func (u *UCenter) ResubmitRealname(ctx context.Context, uid int64, input RealnameInput) (*RealnameAuth, error) {
	return u.realname.Resubmit(ctx, uid, input)
}

// ConfirmRealname reviews a pending real-name submission.
func (u *UCenter) ConfirmRealname(ctx context.Context, uid int64, decision ReviewDecision, comment string) (*RealnameAuth, error) {
	return u.realname.Confirm(ctx, uid, decision, comment)
}

// Realname returns the real-name submission of an account.
func (u *UCenter) Realname(ctx context.Context, uid int64) (*RealnameAuth, error) {
	return u.realname.Get(ctx, uid)
}

// BindOpenAccount links an account to a third party identity.
func (u *UCenter) BindOpenAccount(ctx context.Context, uid int64, openID string, platform int) (*OpenAccount, error) {
	return u.open.Bind(ctx, uid, openID, platform)
}

// UnbindOpenAccount removes a third party binding.
func (u *UCenter) UnbindOpenAccount(ctx context.Context, uid int64, platform int) error {
	return u.open.Unbind(ctx, uid, platform)
}

// FindOpenAccount returns the binding of a third party identity.
func (u *UCenter) FindOpenAccount(ctx context.Context, openID string, platform int) (*OpenAccount, error) {
	return u.open.Find(ctx, openID, platform)
}

// IsOpenAccountBound reports whether an account is bound on platform.
func (u *UCenter) IsOpenAccountBound(ctx context.Context, uid int64, platform int) (bool, error) {
	return u.open.IsBound(ctx, uid, platform)
}

// QueryAccounts lists accounts.
func (u *UCenter) QueryAccounts(ctx context.Context, query AccountQuery) (*Page[*Account], error) {
	return u.accounts.QueryAccounts(ctx, query)
}

// QueryLoginAttempts lists login audit records.
func (u *UCenter) QueryLoginAttempts(ctx context.Context, query AttemptQuery) (*Page[*LoginAttempt], error) {
	return u.accounts.QueryLoginAttempts(ctx, query)
}

// Account returns an account with its real-name record.
func (u *UCenter) Account(ctx context.Context, id int64) (*Account, error) {
	return u.accounts.Get(ctx, id)
}
