package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginIDTaken indicates the chosen login identifier is already in use.
	ErrLoginIDTaken = errors.New("login id already taken")
	// ErrEmailTaken indicates the email address is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrConflict indicates a uniqueness constraint violation that could not
	// be attributed to a specific field.
	ErrConflict = errors.New("conflict")
	// ErrTokenInvalid indicates a missing, consumed or expired reset token.
	ErrTokenInvalid = errors.New("reset token invalid or expired")
	// ErrMailDelivery indicates the mail transport failed after state was
	// already committed.
	ErrMailDelivery = errors.New("mail delivery failed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts an error into text that can be shown to a browser
// without leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrLoginIDTaken):
		return "User ID already taken"
	case errors.Is(err, ErrEmailTaken):
		return "Email already registered"
	case errors.Is(err, ErrConflict):
		return "Registration failed. Please try again."
	case errors.Is(err, ErrTokenInvalid):
		return "Invalid or expired reset token"
	case errors.Is(err, ErrMailDelivery):
		return "Failed to send email. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
