package ucenter_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func login(f *fixture, account, password, ip string) (*ucenter.Account, error) {
	return f.uc.Login(context.Background(), ucenter.LoginInput{
		LoginType: ucenter.IdentityUsername,
		Account:   account,
		Password:  password,
	}, ip, "test-agent")
}

func TestLoginSuccessCommitsSession(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "alice", "secret1")

	account, err := login(f, "alice", "secret1", "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, account)

	assert.Equal(t, id, account.ID)
	assert.Equal(t, "1.2.3.4", account.LoginIP)
	assert.NotEmpty(t, account.LoginToken)
	assert.Len(t, account.LoginToken, 32)
	require.NotNil(t, account.LoginTime)
	assert.True(t, f.clock.Now().Equal(*account.LoginTime))

	stored, err := f.uc.Account(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, account.LoginToken, stored.LoginToken)
	assert.Equal(t, "1.2.3.4", stored.LoginIP)

	attempts := f.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, ucenter.AttemptLoginSuccess, attempts[0].Type)
	assert.Equal(t, id, attempts[0].AccountID)
	assert.Equal(t, "test-agent", attempts[0].UserAgent)

	assert.Contains(t, f.sink.Types(), ucenter.ActivityEventLoginSuccess)
}

func TestLoginTokenChangesOnEveryLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")

	first, err := login(f, "alice", "secret1", "1.2.3.4")
	require.NoError(t, err)
	second, err := login(f, "alice", "secret1", "1.2.3.4")
	require.NoError(t, err)

	assert.NotEqual(t, first.LoginToken, second.LoginToken)
}

func TestLoginWrongPasswordRecordsFailure(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "alice", "secret1")

	_, err := login(f, "alice", "wrong-pass", "1.2.3.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ucenter.ErrInvalidCredentials)
	assert.True(t, ucenter.IsRejection(err))
	assert.Equal(t, "credentials incorrect", ucenter.Reason(err))

	attempts := f.attempts(t)
	require.Len(t, attempts, 1)
	assert.Equal(t, ucenter.AttemptLoginFailure, attempts[0].Type)
	assert.Equal(t, id, attempts[0].AccountID)
	assert.Equal(t, "password error", attempts[0].Action)
	assert.Equal(t, "1.2.3.4", attempts[0].IP)
}

func TestLoginUnknownAccountWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")

	_, err := login(f, "mallory", "secret1", "1.2.3.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ucenter.ErrInvalidCredentials)
	assert.Empty(t, f.attempts(t))
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown login type", func(t *testing.T) {
		_, err := f.uc.Login(context.Background(), ucenter.LoginInput{
			LoginType: 9,
			Account:   "alice",
			Password:  "secret1",
		}, "1.2.3.4", "")
		assert.ErrorIs(t, err, ucenter.ErrUnknownLoginType)
	})

	t.Run("malformed mobile", func(t *testing.T) {
		_, err := f.uc.Login(context.Background(), ucenter.LoginInput{
			LoginType: ucenter.IdentityMobile,
			Account:   "12ab",
			Password:  "secret1",
		}, "1.2.3.4", "")
		require.Error(t, err)
		assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeValidation))
	})

	t.Run("malformed email", func(t *testing.T) {
		_, err := f.uc.Login(context.Background(), ucenter.LoginInput{
			LoginType: ucenter.IdentityEmail,
			Account:   "not-an-email",
			Password:  "secret1",
		}, "1.2.3.4", "")
		require.Error(t, err)
		assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeValidation))
	})

	t.Run("short password", func(t *testing.T) {
		_, err := login(f, "alice", "123", "1.2.3.4")
		require.Error(t, err)
		assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeValidation))
		assert.Contains(t, ucenter.Reason(err), "password")
	})

	assert.Empty(t, f.attempts(t))
}

func TestLoginByMobileAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Register(ctx, ucenter.RegisterInput{
		RegisterType: ucenter.IdentityMobile,
		Account:      "13800138000",
		Password:     "secret1",
	}, "")
	require.NoError(t, err)

	_, err = f.uc.Register(ctx, ucenter.RegisterInput{
		RegisterType: ucenter.IdentityEmail,
		Account:      "bob@example.com",
		Password:     "secret2",
	}, "")
	require.NoError(t, err)

	account, err := f.uc.Login(ctx, ucenter.LoginInput{LoginType: ucenter.IdentityMobile, Account: "13800138000", Password: "secret1"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "13800138000", account.Mobile)

	account, err = f.uc.Login(ctx, ucenter.LoginInput{LoginType: ucenter.IdentityEmail, Account: "bob@example.com", Password: "secret2"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", account.Email)
}

func TestLoginAccountLockout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")

	var seen []string
	for i := 0; i < 2; i++ {
		account, err := login(f, "alice", "secret1", "1.2.3.4")
		require.NoError(t, err)
		seen = append(seen, account.LoginToken)
	}
	f.clock.Advance(time.Second)

	for i := 0; i < f.cfg.LoginThrottle.AccountErrorLimit; i++ {
		_, err := login(f, "alice", "wrong-pass", "1.2.3.4")
		require.ErrorIs(t, err, ucenter.ErrInvalidCredentials)
	}

	_, err := login(f, "alice", "secret1", "1.2.3.4")
	require.Error(t, err)
	assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeAccountLocked))
	assert.Equal(t, "login failed 5 times in a row, please try again in 5 minutes", ucenter.Reason(err))

	// the locked attempt is not recorded
	assert.Len(t, f.attempts(t), 2+5)

	f.clock.Advance(5*time.Minute + time.Second)

	account, err := login(f, "alice", "secret1", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.NotEmpty(t, account.LoginToken)
	assert.NotContains(t, seen, account.LoginToken)
}

func TestLoginSourceLockout(t *testing.T) {
	f := newFixture(t, func(cfg *ucenter.Config) {
		cfg.LoginThrottle.AccountErrorLimit = 0
		cfg.LoginThrottle.IPErrorLimit = 2
	})
	f.register(t, "alice", "secret1")
	f.register(t, "bob", "secret2")

	_, err := login(f, "alice", "wrong-pass", "6.6.6.6")
	require.ErrorIs(t, err, ucenter.ErrInvalidCredentials)
	_, err = login(f, "bob", "wrong-pass", "6.6.6.6")
	require.ErrorIs(t, err, ucenter.ErrInvalidCredentials)

	_, err = login(f, "alice", "secret1", "6.6.6.6")
	assert.ErrorIs(t, err, ucenter.ErrSourceLocked)

	_, err = login(f, "alice", "secret1", "7.7.7.7")
	assert.NoError(t, err)

	// an empty source is never throttled
	_, err = login(f, "bob", "secret2", "")
	assert.NoError(t, err)
}

func TestLoginStatusRejections(t *testing.T) {
	cases := []struct {
		status ucenter.AccountStatus
		want   error
	}{
		{ucenter.AccountStatusPending, ucenter.ErrAccountPending},
		{ucenter.AccountStatusDisabled, ucenter.ErrAccountDisabled},
		{ucenter.AccountStatusRejected, ucenter.ErrAccountRejected},
	}

	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			f := newFixture(t)
			id := f.register(t, "alice", "secret1")

			_, err := f.uc.ChangeStatus(context.Background(), ucenter.ActorRef{ID: "admin"}, id, tc.status)
			require.NoError(t, err)

			_, err = login(f, "alice", "secret1", "1.2.3.4")
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.attempts(t))
		})
	}
}

func TestLoginRejectsAccountDisabledBeforeCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "alice", "secret1")

	// the first clock read of a login comes after the status check, an
	// administrator disables the account right there
	var armed atomic.Bool
	clock := func() time.Time {
		if armed.CompareAndSwap(true, false) {
			_, err := f.db.NewUpdate().
				Model((*ucenter.Account)(nil)).
				Set("status = ?", ucenter.AccountStatusDisabled).
				Where("id = ?", id).
				Exec(ctx)
			require.NoError(t, err)
		}
		return f.clock.Now()
	}
	uc, err := ucenter.New(f.db, f.cfg,
		ucenter.WithLogger(ucenter.NewZapLogger(zap.NewNop())),
		ucenter.WithClock(clock),
	)
	require.NoError(t, err)

	armed.Store(true)
	account, err := uc.Login(ctx, ucenter.LoginInput{
		LoginType: ucenter.IdentityUsername,
		Account:   "alice",
		Password:  "secret1",
	}, "1.2.3.4", "test-agent")
	require.Error(t, err)
	assert.Nil(t, account)
	assert.ErrorIs(t, err, ucenter.ErrAccountDisabled)
	assert.False(t, ucenter.IsFault(err))
	assert.False(t, armed.Load())

	stored, err := uc.Account(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ucenter.AccountStatusDisabled, stored.Status)
	assert.Empty(t, stored.LoginToken)
	assert.Nil(t, stored.LoginTime)
	assert.Empty(t, f.attempts(t))
}

func TestLoginAuditFailureKeepsRejection(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret1")
	f.exec(t, `CREATE TRIGGER fail_audit BEFORE INSERT ON user_login_log
		WHEN NEW.type >= 2 BEGIN SELECT RAISE(ABORT, 'audit store down'); END`)

	_, err := login(f, "alice", "wrong-pass", "1.2.3.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ucenter.ErrInvalidCredentials)
	assert.False(t, ucenter.IsFault(err))
	assert.Empty(t, f.attempts(t))
}

func TestLoginCommitFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "alice", "secret1")
	f.exec(t, `CREATE TRIGGER fail_success BEFORE INSERT ON user_login_log
		WHEN NEW.type = 1 BEGIN SELECT RAISE(ABORT, 'audit store down'); END`)

	_, err := login(f, "alice", "secret1", "1.2.3.4")
	require.Error(t, err)
	assert.True(t, ucenter.IsFault(err))
	assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeLoginFault))

	stored, err := f.uc.Account(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored.LoginTime)
	assert.Empty(t, stored.LoginToken)
	assert.Empty(t, f.attempts(t))
}

func TestLoginLogsEveryState(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	cfg := testConfig()
	db := newTestDB(t)
	require.NoError(t, ucenter.CreateSchema(context.Background(), db, cfg.Tables))

	uc, err := ucenter.New(db, cfg, ucenter.WithLoggerProvider(ucenter.ZapLoggerProvider(zap.New(core))))
	require.NoError(t, err)

	_, err = uc.Register(context.Background(), ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      "alice",
		Password:     "secret1",
	}, "")
	require.NoError(t, err)

	_, err = uc.Login(context.Background(), ucenter.LoginInput{
		LoginType: ucenter.IdentityUsername,
		Account:   "alice",
		Password:  "secret1",
	}, "1.2.3.4", "")
	require.NoError(t, err)

	var states []string
	for _, entry := range logs.FilterMessage("login state").All() {
		assert.Equal(t, "ucenter.authenticator", entry.LoggerName)
		states = append(states, entry.ContextMap()["state"].(string))
	}

	assert.Equal(t, []string{
		"validating",
		"resolving_lookup",
		"checking_status",
		"checking_throttle",
		"verifying_credential",
		"committing_session",
		"success",
	}, states)
}
