package ucenter_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
)

func TestIsFault(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "Business rejection",
			err:      ucenter.ErrInvalidCredentials,
			expected: false,
		},
		{
			name:     "Wrapped rejection",
			err:      fmt.Errorf("login: %w", ucenter.ErrAccountDisabled),
			expected: false,
		},
		{
			name:     "Internal category",
			err:      goerrors.Wrap(errors.New("disk full"), goerrors.CategoryInternal, "store failed"),
			expected: true,
		},
		{
			name:     "Plain error",
			err:      errors.New("connection reset"),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ucenter.IsFault(tt.err))
			assert.Equal(t, tt.err != nil && !tt.expected, ucenter.IsRejection(tt.err))
		})
	}
}

func TestSentinelTextCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ucenter.ErrInvalidCredentials, ucenter.TextCodeInvalidCreds},
		{ucenter.ErrUnknownLoginType, ucenter.TextCodeUnknownLoginType},
		{ucenter.ErrAccountPending, ucenter.TextCodeAccountPending},
		{ucenter.ErrAccountDisabled, ucenter.TextCodeAccountDisabled},
		{ucenter.ErrAccountRejected, ucenter.TextCodeAccountRejected},
		{ucenter.ErrSourceLocked, ucenter.TextCodeSourceLocked},
		{ucenter.ErrInvalidInviteCode, ucenter.TextCodeInvalidInviteCode},
		{ucenter.ErrInviteTargetNotFound, ucenter.TextCodeInviteTarget},
		{ucenter.ErrRealnameInProgress, ucenter.TextCodeRealnameInProgress},
		{ucenter.ErrOpenIDTaken, ucenter.TextCodeOpenIDTaken},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.True(t, ucenter.HasTextCode(tt.err, tt.code))
			assert.True(t, ucenter.IsRejection(tt.err))
		})
	}
}

func TestReason(t *testing.T) {
	assert.Empty(t, ucenter.Reason(nil))
	assert.Equal(t, "credentials incorrect", ucenter.Reason(fmt.Errorf("wrapped: %w", ucenter.ErrInvalidCredentials)))
	assert.Equal(t, "plain", ucenter.Reason(errors.New("plain")))
	assert.False(t, ucenter.HasTextCode(errors.New("plain"), ucenter.TextCodeValidation))
}
