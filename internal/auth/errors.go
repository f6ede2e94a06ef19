package auth

import "errors"

// AuthenticationError means the caller's identity could not be established:
// the credential was missing, malformed, expired or revoked.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string { return e.Reason }

// AuthorizationError means the identity was established but its role is not
// permitted for the operation.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

var (
	ErrMissingToken            = &AuthenticationError{Reason: "missing or invalid token"}
	ErrTokenExpired            = &AuthenticationError{Reason: "token expired"}
	ErrInvalidToken            = &AuthenticationError{Reason: "invalid token"}
	ErrInvalidSession          = &AuthenticationError{Reason: "invalid session"}
	ErrInsufficientPermissions = &AuthorizationError{Reason: "insufficient permissions"}
)

// Outcome names a gate result for metrics and audit events.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, ErrInsufficientPermissions):
		return "forbidden"
	}
	return "error"
}
