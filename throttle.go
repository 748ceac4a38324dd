package ucenter

import (
	"context"
	"time"
)

// LoginThrottle rejects logins for accounts and source addresses that
// failed too often inside the lockout window. Reads are not locked, two
// concurrent attempts may both pass the boundary check.
type LoginThrottle struct {
	attempts LoginAttempts
	cfg      ThrottleConfig
	now      func() time.Time
	logger   Logger
}

// NewLoginThrottle builds a throttle reading from attempts.
func NewLoginThrottle(attempts LoginAttempts, cfg ThrottleConfig, now func() time.Time, logger Logger) *LoginThrottle {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &LoginThrottle{
		attempts: attempts,
		cfg:      cfg,
		now:      now,
		logger:   logger,
	}
}

func (t *LoginThrottle) window() time.Time {
	return t.now().Add(-time.Duration(t.cfg.LoginGap) * time.Minute)
}

// CheckAccount returns a rate limit rejection when uid reached its failure
// limit inside the window.
func (t *LoginThrottle) CheckAccount(ctx context.Context, uid int64) error {
	limit := t.cfg.AccountErrorLimit
	if limit <= 0 {
		return nil
	}

	ids, err := t.attempts.RecentFailureIDs(ctx, "uid", uid, t.window(), limit)
	if err != nil {
		return storeFault(err, "failed to read recent login failures")
	}

	if len(ids) >= limit {
		t.logger.Info("account locked by login throttle", "uid", uid, "failures", len(ids), "gap_minutes", t.cfg.LoginGap)
		return newAccountLockedError(limit, t.cfg.LoginGap)
	}
	return nil
}

// CheckSource returns a rate limit rejection when ip reached its failure
// limit inside the window. An empty ip is never throttled.
func (t *LoginThrottle) CheckSource(ctx context.Context, ip string) error {
	limit := t.cfg.IPErrorLimit
	if limit <= 0 || ip == "" {
		return nil
	}

	ids, err := t.attempts.RecentFailureIDs(ctx, "ip", ip, t.window(), limit)
	if err != nil {
		return storeFault(err, "failed to read recent login failures")
	}

	if len(ids) >= limit {
		t.logger.Info("source locked by login throttle", "ip", ip, "failures", len(ids), "gap_minutes", t.cfg.LoginGap)
		return ErrSourceLocked
	}
	return nil
}
