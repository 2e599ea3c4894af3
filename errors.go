package household

import (
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSessionQueryFailed       = "SESSION_QUERY_FAILED"
	TextCodeAuthFailed               = "AUTH_FAILED"
	TextCodeProfileFetchFailed       = "PROFILE_FETCH_FAILED"
	TextCodeProfileNotFoundYet       = "PROFILE_NOT_FOUND_YET"
	TextCodeProfileNotLoaded         = "PROFILE_NOT_LOADED"
	TextCodeHouseholdNotSet          = "HOUSEHOLD_NOT_SET"
	TextCodeInvalidSessionTransition = "INVALID_SESSION_TRANSITION"
	TextCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	TextCodeInvalidProfileUpdate     = "INVALID_PROFILE_UPDATE"
	TextCodeInvalidJoinCode          = "INVALID_JOIN_CODE"
	TextCodeInvalidRouteTable        = "INVALID_ROUTE_TABLE"
	TextCodeInvalidPolicyRule        = "INVALID_POLICY_RULE"
	TextCodeAccessDenied             = "ACCESS_DENIED"
	TextCodeControllerClosed         = "SESSION_CONTROLLER_CLOSED"
	TextCodeTokenExpired             = "TOKEN_EXPIRED"
	TextCodeTokenMalformed           = "TOKEN_MALFORMED"
)

// ErrHouseholdNotSet is returned when a household scoped read runs without a
// household identifier on the profile.
var ErrHouseholdNotSet = goerrors.New("household not set", goerrors.CategoryBadInput).
	WithTextCode(TextCodeHouseholdNotSet).
	WithCode(goerrors.CodeBadRequest)

// ErrProfileNotLoaded is returned when a profile update runs before hydration.
var ErrProfileNotLoaded = goerrors.New("profile not loaded", goerrors.CategoryConflict).
	WithTextCode(TextCodeProfileNotLoaded).
	WithCode(goerrors.CodeConflict)

// ErrControllerClosed is returned by operations on a torn down controller.
var ErrControllerClosed = goerrors.New("session controller closed", goerrors.CategoryOperation).
	WithTextCode(TextCodeControllerClosed).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a provider token is past its expiration.
var ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a provider token can not be decoded.
var ErrTokenMalformed = goerrors.New("session token malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidJoinCode is returned for an empty household join code.
var ErrInvalidJoinCode = goerrors.New("invalid join code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidJoinCode).
	WithCode(goerrors.CodeBadRequest)

// ErrAccessDenied is returned when a viewer can not enter a route or act on a
// record.
var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// NewSessionQueryError wraps a failed current session query. The failure is
// recoverable and the viewer is treated as signed out.
func NewSessionQueryError(cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryOperation, "unable to load user session").
		WithTextCode(TextCodeSessionQueryFailed).
		WithCode(goerrors.CodeInternal)
}

// NewAuthError wraps a sign in, sign up or sign out failure.
func NewAuthError(operation string, cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryAuth, operation+" failed").
		WithTextCode(TextCodeAuthFailed).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{"operation": operation})
}

// NewProfileFetchError wraps a transport or query failure while hydrating.
func NewProfileFetchError(subjectID string, cause error) *goerrors.Error {
	return wrapOrNew(cause, goerrors.CategoryOperation, "could not retrieve profile").
		WithTextCode(TextCodeProfileFetchFailed).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"subject_id": subjectID})
}

// NewProfileNotFoundError is returned by profile stores when no row exists
// for the subject yet.
func NewProfileNotFoundError(subjectID string) *goerrors.Error {
	return goerrors.New("profile not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeProfileNotFoundYet).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"subject_id": subjectID})
}

// NewInvalidTransitionError reports a rejected session state change.
func NewInvalidTransitionError(from, to SessionState) *goerrors.Error {
	return goerrors.New("invalid session state transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidSessionTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"from": from, "to": to})
}

// IsSessionQueryError checks for a failed session query
func IsSessionQueryError(err error) bool {
	return hasTextCode(err, TextCodeSessionQueryFailed)
}

// IsAuthError checks for a sign in, sign up or sign out failure
func IsAuthError(err error) bool {
	return hasTextCode(err, TextCodeAuthFailed)
}

// IsProfileFetchError checks for a recoverable hydration failure
func IsProfileFetchError(err error) bool {
	return hasTextCode(err, TextCodeProfileFetchFailed)
}

// IsProfileNotFound checks for a missing profile row
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	return hasTextCode(err, TextCodeProfileNotFoundYet) || errors.Is(err, sql.ErrNoRows)
}

// IsHouseholdNotSet checks for a read against an empty household partition
func IsHouseholdNotSet(err error) bool {
	return hasTextCode(err, TextCodeHouseholdNotSet)
}

// IsInvalidTransition checks for a rejected session state change
func IsInvalidTransition(err error) bool {
	return hasTextCode(err, TextCodeInvalidSessionTransition)
}

// IsValidationError checks for rejected input
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation
}

// TextCode returns the text code carried by err, if any
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return TextCode(err) == code
}

func wrapOrNew(cause error, category goerrors.Category, msg string) *goerrors.Error {
	if cause == nil {
		return goerrors.New(msg, category)
	}
	return goerrors.Wrap(cause, category, msg)
}

func validationError(err error, code, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, msg).
		WithTextCode(code).
		WithCode(goerrors.CodeBadRequest)
}
