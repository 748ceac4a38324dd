package ucenter

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation          = "VALIDATION_ERROR"
	TextCodeUnknownLoginType    = "UNKNOWN_LOGIN_TYPE"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeAccountPending      = "ACCOUNT_PENDING"
	TextCodeAccountDisabled     = "ACCOUNT_DISABLED"
	TextCodeAccountRejected     = "ACCOUNT_REJECTED"
	TextCodeAccountStatus       = "ACCOUNT_STATUS_UNKNOWN"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeSourceLocked        = "SOURCE_LOCKED"
	TextCodeLoginFault          = "LOGIN_INFRASTRUCTURE_ERROR"
	TextCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	TextCodeDuplicateField      = "DUPLICATE_FIELD"
	TextCodeInviteCodeRequired  = "INVITE_CODE_REQUIRED"
	TextCodeInvalidInviteCode   = "INVALID_INVITE_CODE"
	TextCodeInviteTarget        = "INVITE_TARGET_NOT_FOUND"
	TextCodeInviterNotFound     = "INVITER_NOT_FOUND"
	TextCodeWrongOldPassword    = "WRONG_OLD_PASSWORD"
	TextCodePasswordRepeated    = "PASSWORD_REPEATED"
	TextCodeBindTaken           = "BIND_ACCOUNT_TAKEN"
	TextCodeStatusUnchanged     = "STATUS_UNCHANGED"
	TextCodeInvalidTransition   = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeRealnameExists      = "REALNAME_ALREADY_SUBMITTED"
	TextCodeRealnameMissing     = "REALNAME_NOT_SUBMITTED"
	TextCodeRealnameInProgress  = "REALNAME_APPROVED_OR_PENDING"
	TextCodeRealnameApproved    = "REALNAME_ALREADY_APPROVED"
	TextCodeRealnameReviewed    = "REALNAME_ALREADY_REVIEWED"
	TextCodeRealnameFault       = "REALNAME_RESUBMIT_ERROR"
	TextCodeOpenAccountBound    = "OPEN_ACCOUNT_BOUND"
	TextCodeOpenAccountNotBound = "OPEN_ACCOUNT_NOT_BOUND"
	TextCodeOpenIDTaken         = "OPEN_ID_TAKEN"
	TextCodeStoreFault          = "STORE_ERROR"
)

// ErrInvalidCredentials is returned for unknown accounts and wrong passwords
// alike so callers cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("credentials incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknownLoginType is returned when login_type is not mobile, email or username.
var ErrUnknownLoginType = goerrors.New("unknown login type", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownLoginType).
	WithCode(goerrors.CodeBadRequest)

// ErrUnknownRegisterType is returned when register_type is not mobile, email or username.
var ErrUnknownRegisterType = goerrors.New("unknown register type", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountPending = goerrors.New("account is under review", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountPending).
	WithCode(goerrors.CodeForbidden)

var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

var ErrAccountRejected = goerrors.New("account review was rejected", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountRejected).
	WithCode(goerrors.CodeForbidden)

var ErrAccountStatusUnknown = goerrors.New("account status is unknown", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountStatus).
	WithCode(goerrors.CodeForbidden)

// ErrSourceLocked is returned when a source address exceeded its failure budget.
var ErrSourceLocked = goerrors.New("abnormal login activity, please try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeSourceLocked)

var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrInviteCodeRequired = goerrors.New("invite code is required", goerrors.CategoryValidation).
	WithTextCode(TextCodeInviteCodeRequired).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidInviteCode = goerrors.New("invalid invite code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInviteCode).
	WithCode(goerrors.CodeBadRequest)

var ErrInviteTargetNotFound = goerrors.New("invite code target user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInviteTarget).
	WithCode(goerrors.CodeNotFound)

var ErrInviterNotFound = goerrors.New("inviter not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInviterNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrWrongOldPassword = goerrors.New("old password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongOldPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrPasswordRepeated = goerrors.New("new password must differ from the current passwords", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordRepeated).
	WithCode(goerrors.CodeBadRequest)

var ErrBindAccountTaken = goerrors.New("bind account is already used by another account", goerrors.CategoryConflict).
	WithTextCode(TextCodeBindTaken).
	WithCode(goerrors.CodeConflict)

var ErrStatusUnchanged = goerrors.New("account is already in the requested status", goerrors.CategoryConflict).
	WithTextCode(TextCodeStatusUnchanged).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

var ErrRealnameExists = goerrors.New("real-name verification already submitted", goerrors.CategoryConflict).
	WithTextCode(TextCodeRealnameExists).
	WithCode(goerrors.CodeConflict)

var ErrRealnameMissing = goerrors.New("nothing to resubmit, real-name verification not submitted", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRealnameMissing).
	WithCode(goerrors.CodeNotFound)

var ErrRealnameInProgress = goerrors.New("real-name verification already approved or under review", goerrors.CategoryConflict).
	WithTextCode(TextCodeRealnameInProgress).
	WithCode(goerrors.CodeConflict)

var ErrRealnameApproved = goerrors.New("real-name verification already approved, do not repeat", goerrors.CategoryConflict).
	WithTextCode(TextCodeRealnameApproved).
	WithCode(goerrors.CodeConflict)

var ErrRealnameReviewed = goerrors.New("real-name verification already reviewed", goerrors.CategoryConflict).
	WithTextCode(TextCodeRealnameReviewed).
	WithCode(goerrors.CodeConflict)

var ErrOpenAccountBound = goerrors.New("account already bound on this platform, unbind first", goerrors.CategoryConflict).
	WithTextCode(TextCodeOpenAccountBound).
	WithCode(goerrors.CodeConflict)

var ErrOpenAccountNotBound = goerrors.New("account is not bound on this platform", goerrors.CategoryNotFound).
	WithTextCode(TextCodeOpenAccountNotBound).
	WithCode(goerrors.CodeNotFound)

var ErrOpenIDTaken = goerrors.New("third party account is bound to another account", goerrors.CategoryConflict).
	WithTextCode(TextCodeOpenIDTaken).
	WithCode(goerrors.CodeConflict)

func newValidationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

func newDuplicateFieldError(label string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s already exists", label), goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateField).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"field": label})
}

func newAccountLockedError(limit, gapMinutes int) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("login failed %d times in a row, please try again in %d minutes", limit, gapMinutes),
		goerrors.CategoryRateLimit,
	).WithTextCode(TextCodeAccountLocked).
		WithMetadata(map[string]any{"limit": limit, "gap_minutes": gapMinutes})
}

// storeFault wraps a storage failure as an infrastructure fault.
func storeFault(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeStoreFault)
}

// passThroughRejection returns err untouched when it already is a business
// rejection, otherwise it wraps it as a fault with the given text code.
func passThroughRejection(err error, textCode, message string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(textCode)
}

// IsFault reports whether err is an infrastructure failure. Callers may retry
// faults, they must not retry rejections.
func IsFault(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryInternal
	}

	return true
}

// IsRejection reports whether err is an ordinary business rule rejection.
func IsRejection(err error) bool {
	return err != nil && !IsFault(err)
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// Reason returns the human readable message of err.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr.Message
	}

	return err.Error()
}
