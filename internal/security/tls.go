package security

import (
	"crypto/tls"
)

// ClientTLSConfig returns the TLS configuration used to reach a mail server
func ClientTLSConfig(serverName string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // opt-in for self-signed test servers
	}
}
