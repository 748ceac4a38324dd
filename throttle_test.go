package ucenter_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThrottle(t *testing.T, cfg ucenter.ThrottleConfig) (*ucenter.LoginThrottle, ucenter.LoginAttempts, *testClock, *fixture) {
	t.Helper()
	f := newFixture(t)
	clock := newTestClock()
	attempts := ucenter.NewLoginAttemptsRepository(f.db, f.cfg.Tables.LoginAttempt, clock.Now)
	return ucenter.NewLoginThrottle(attempts, cfg, clock.Now, nil), attempts, clock, f
}

func TestLoginThrottleAccountWindow(t *testing.T) {
	throttle, attempts, clock, _ := newThrottle(t, ucenter.ThrottleConfig{AccountErrorLimit: 3, LoginGap: 10})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 9, Type: ucenter.AttemptLoginFailure}))
		clock.Advance(time.Minute)
	}
	// successes never count
	require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 9, Type: ucenter.AttemptLoginSuccess}))

	err := throttle.CheckAccount(ctx, 9)
	require.Error(t, err)
	assert.True(t, ucenter.HasTextCode(err, ucenter.TextCodeAccountLocked))
	assert.Equal(t, "login failed 3 times in a row, please try again in 10 minutes", ucenter.Reason(err))

	assert.NoError(t, throttle.CheckAccount(ctx, 10))

	// the oldest failure leaves the window after ten minutes
	clock.Advance(8 * time.Minute)
	assert.NoError(t, throttle.CheckAccount(ctx, 9))
}

func TestLoginThrottleCountsHigherFailureTypes(t *testing.T) {
	throttle, attempts, _, _ := newThrottle(t, ucenter.ThrottleConfig{AccountErrorLimit: 2, LoginGap: 5})
	ctx := context.Background()

	require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 4, Type: ucenter.AttemptLoginFailure}))
	require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 4, Type: ucenter.AttemptType(5)}))

	assert.True(t, ucenter.HasTextCode(throttle.CheckAccount(ctx, 4), ucenter.TextCodeAccountLocked))
}

func TestLoginThrottleSource(t *testing.T) {
	throttle, attempts, _, _ := newThrottle(t, ucenter.ThrottleConfig{IPErrorLimit: 2, LoginGap: 5})
	ctx := context.Background()

	require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 1, Type: ucenter.AttemptLoginFailure, IP: "6.6.6.6"}))
	require.NoError(t, attempts.Append(ctx, &ucenter.LoginAttempt{AccountID: 2, Type: ucenter.AttemptLoginFailure, IP: "6.6.6.6"}))

	assert.ErrorIs(t, throttle.CheckSource(ctx, "6.6.6.6"), ucenter.ErrSourceLocked)
	assert.NoError(t, throttle.CheckSource(ctx, "7.7.7.7"))
	assert.NoError(t, throttle.CheckSource(ctx, ""))

	// the account limit is disabled
	assert.NoError(t, throttle.CheckAccount(ctx, 1))
}

func TestLoginThrottleReadFailureIsFault(t *testing.T) {
	throttle, _, _, f := newThrottle(t, ucenter.ThrottleConfig{AccountErrorLimit: 2, IPErrorLimit: 2, LoginGap: 5})
	f.exec(t, `DROP TABLE user_login_log`)

	err := throttle.CheckAccount(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, ucenter.IsFault(err))

	err = throttle.CheckSource(context.Background(), "1.1.1.1")
	require.Error(t, err)
	assert.True(t, ucenter.IsFault(err))
}
