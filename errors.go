package magiclink

import (
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside structured errors.
const (
	TextCodeInvalidEmail       = "INVALID_EMAIL"
	TextCodeRateLimited        = "RATE_LIMITED"
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeTokenUsed          = "TOKEN_ALREADY_USED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeEmailMismatch      = "EMAIL_MISMATCH"
	TextCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	TextCodeVerificationFailed = "VERIFICATION_FAILED"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
)

// metadata key carrying the machine readable retry interval on rate-limit
// failures. Rate limiting is the only error class that carries one.
const retryAfterMetadataKey = "retry_after_seconds"

// ErrInvalidEmail is returned when the address fails the syntactic check.
var ErrInvalidEmail = errors.New("the email address provided is invalid", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail)

// ErrTokenNotFound is returned when no outstanding token matches.
var ErrTokenNotFound = errors.New("sign-in link is not recognized", errors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound)

// ErrTokenUsed is returned when the token was already consumed. A token is
// never re-armed once used.
var ErrTokenUsed = errors.New("sign-in link was already used", errors.CategoryAuth).
	WithTextCode(TextCodeTokenUsed)

// ErrTokenExpired is returned when the token is past its expiry.
var ErrTokenExpired = errors.New("sign-in link has expired, request a new one", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrEmailMismatch is returned when the presented email does not normalize
// to the identity the token was issued for. The token remains unused.
var ErrEmailMismatch = errors.New("email does not match this sign-in link", errors.CategoryAuth).
	WithTextCode(TextCodeEmailMismatch)

// ErrStoreUnavailable signals that the persistence layer is down. Issuance
// fails closed on it: no token is considered sent.
var ErrStoreUnavailable = errors.New("authentication backend is unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable)

// ErrVerificationFailed is the catch-all for unexpected backend errors
// during token verification.
var ErrVerificationFailed = errors.New("verification failed, please try again", errors.CategoryInternal).
	WithTextCode(TextCodeVerificationFailed)

// ErrUnableToDecodeSession is returned when a stored session payload cannot
// be decoded.
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError)

// RateLimited builds the rate-limit failure carrying a human readable
// message and the machine readable retry interval.
func RateLimited(retryAfter time.Duration) *errors.Error {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return errors.New(
		fmt.Sprintf("too many sign-in requests, try again in %s", (time.Duration(secs) * time.Second).String()),
		errors.CategoryRateLimit,
	).WithTextCode(TextCodeRateLimited).
		WithMetadata(map[string]any{retryAfterMetadataKey: secs})
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryRateLimit
}

// RetryAfterSeconds extracts the retry hint from a rate-limit failure. It
// returns 0 for every other error.
func RetryAfterSeconds(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return 0
	}
	if richErr.Metadata == nil {
		return 0
	}
	if secs, ok := richErr.Metadata[retryAfterMetadataKey].(int); ok {
		return secs
	}
	return 0
}
