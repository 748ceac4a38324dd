package ucenter

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// OpenAccountBinder links accounts to third party platform identities.
// The platform protocol itself is handled by the caller.
type OpenAccountBinder struct {
	repo     RepositoryManager
	activity activityRecorder
	logger   Logger
}

// NewOpenAccountBinder wires an OpenAccountBinder.
func NewOpenAccountBinder(repo RepositoryManager, now func() time.Time, sink ActivitySink, logger Logger) *OpenAccountBinder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &OpenAccountBinder{
		repo:     repo,
		activity: activityRecorder{sink: normalizeActivitySink(sink), now: now, logger: logger},
		logger:   logger,
	}
}

// Find returns the binding for openID on platform.
func (b *OpenAccountBinder) Find(ctx context.Context, openID string, platform int) (*OpenAccount, error) {
	record, err := b.repo.OpenAccounts().FindByOpenID(ctx, strings.TrimSpace(openID), platform)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrOpenAccountNotBound
		}
		return nil, storeFault(err, "failed to load open account")
	}
	return record, nil
}

// IsBound reports whether uid has a binding on platform.
func (b *OpenAccountBinder) IsBound(ctx context.Context, uid int64, platform int) (bool, error) {
	_, err := b.repo.OpenAccounts().FindByAccount(ctx, uid, platform)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	}
	return false, storeFault(err, "failed to load open account")
}

// Bind links uid to openID on platform. An account holds at most one
// binding per platform and an openID belongs to at most one account.
func (b *OpenAccountBinder) Bind(ctx context.Context, uid int64, openID string, platform int) (*OpenAccount, error) {
	openID = strings.TrimSpace(openID)
	if openID == "" {
		return nil, newValidationError("openid: cannot be blank")
	}
	if platform <= 0 {
		return nil, newValidationError("platform: must be a positive number")
	}

	record := &OpenAccount{AccountID: uid, OpenID: openID, Platform: platform}
	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := b.repo.Accounts().GetByIDTx(ctx, tx, uid); err != nil {
			if isNotFound(err) {
				return ErrAccountNotFound
			}
			return storeFault(err, "failed to load account")
		}

		_, err := b.repo.OpenAccounts().FindByAccountTx(ctx, tx, uid, platform)
		switch {
		case err == nil:
			return ErrOpenAccountBound
		case !isNotFound(err):
			return storeFault(err, "failed to load open account")
		}

		_, err = b.repo.OpenAccounts().FindByOpenIDTx(ctx, tx, openID, platform)
		switch {
		case err == nil:
			return ErrOpenIDTaken
		case !isNotFound(err):
			return storeFault(err, "failed to load open account")
		}

		if _, err := b.repo.OpenAccounts().CreateTx(ctx, tx, record); err != nil {
			return storeFault(err, "failed to store open account")
		}
		return nil
	})
	if err != nil {
		return nil, passThroughRejection(err, TextCodeStoreFault, "failed to bind open account")
	}

	b.logger.Info("open account bound", "uid", uid, "platform", platform)
	b.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventOpenAccountBound,
		AccountID: uid,
		Metadata:  map[string]any{"platform": platform},
	})
	return record, nil
}

// Unbind removes the binding of uid on platform.
func (b *OpenAccountBinder) Unbind(ctx context.Context, uid int64, platform int) error {
	var removed int64
	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		removed, err = b.repo.OpenAccounts().DeleteTx(ctx, tx, uid, platform)
		return err
	})
	if err != nil {
		return storeFault(err, "failed to unbind open account")
	}
	if removed == 0 {
		return ErrOpenAccountNotBound
	}

	b.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventOpenAccountUnbound,
		AccountID: uid,
		Metadata:  map[string]any{"platform": platform},
	})
	return nil
}
