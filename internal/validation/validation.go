// Package validation provides input validation functions.
package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

var (
	// ErrInvalidHost is returned when a server name is neither a host name nor an IP
	ErrInvalidHost = errors.New("invalid host name")
	// ErrInvalidPort is returned when a port is outside 1-65535
	ErrInvalidPort = errors.New("must be 1-65535")
	// ErrInvalidAddress is returned when an email address does not parse
	ErrInvalidAddress = errors.New("invalid email address")
	// ErrInvalidProfileName is returned when a profile name has unsupported characters
	ErrInvalidProfileName = errors.New("invalid profile name: must be 1-64 letters, digits, dots, dashes or underscores")
)

const (
	// Host name constraints (RFC 1035)
	maxHostLength  = 253
	maxLabelLength = 63

	maxProfileNameLength = 64
)

var (
	// RFC 1035 compliant host name pattern
	// Labels: 1-63 chars, alphanumeric and hyphen, not starting/ending with hyphen
	hostPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.?$`)

	profileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Host checks that host is a valid host name or an IP literal.
func Host(host string) error {
	host = strings.TrimSpace(host)
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return nil
	}

	if len(host) == 0 || len(host) > maxHostLength {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	if !hostPattern.MatchString(host) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if len(label) == 0 || len(label) > maxLabelLength {
			return fmt.Errorf("%w: %q", ErrInvalidHost, host)
		}
	}
	return nil
}

// Port checks that port is a usable TCP port.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("Invalid port: %d (%w)", port, ErrInvalidPort)
	}
	return nil
}

// Address checks that addr parses as a single RFC 5322 address, with or
// without a display name.
func Address(addr string) error {
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// ProfileName checks the name a stored account is filed under.
func ProfileName(name string) error {
	if len(name) == 0 || len(name) > maxProfileNameLength {
		return ErrInvalidProfileName
	}
	if !profileNamePattern.MatchString(name) {
		return ErrInvalidProfileName
	}
	return nil
}
