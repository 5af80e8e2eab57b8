package imap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

var (
	// ErrNotConnected is returned by every operation on a store without a
	// live session.
	ErrNotConnected = errors.New("not connected to IMAP server")

	// ErrNotFound is returned when the server has no message with the UID.
	ErrNotFound = errors.New("not found")
)

// AuthError is returned when LOGIN and the AUTHENTICATE PLAIN fallback were
// both rejected.
type AuthError struct {
	Login error
	Plain error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("Authentication failed. This may be due to:\n")
	b.WriteString("1. Incorrect username or password\n")
	b.WriteString("2. IMAP access may not be enabled in account settings\n")
	b.WriteString("3. App password may be incorrect or expired\n")
	b.WriteString("4. Account may need additional security setup\n")
	fmt.Fprintf(&b, "Original error: %v", e.Login)
	return b.String()
}

func (e *AuthError) Unwrap() []error {
	return []error{e.Login, e.Plain}
}

// IsAuthError reports whether err carries an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// isAuthFailure reports whether a LOGIN error was a credential rejection
// rather than a transport failure.
func isAuthFailure(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	if imapErr.Code == imap.ResponseCodeAuthenticationFailed {
		return true
	}
	text := strings.ToLower(imapErr.Text)
	return strings.Contains(text, "authentication failed") || strings.Contains(text, "authenticationfailed")
}

func notFound(uid uint32) error {
	return fmt.Errorf("message %d %w", uid, ErrNotFound)
}
