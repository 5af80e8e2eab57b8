package security

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMSigner signs outgoing messages for one domain
type DKIMSigner struct {
	domain     string
	selector   string
	privateKey *rsa.PrivateKey
}

// NewDKIMSigner loads a PEM encoded RSA key and creates a signer for domain
func NewDKIMSigner(domain, selector, keyPath string) (*DKIMSigner, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM key: %w", err)
	}

	privateKey, err := parseRSAKey(keyData)
	if err != nil {
		return nil, err
	}

	return &DKIMSigner{
		domain:     strings.ToLower(domain),
		selector:   selector,
		privateKey: privateKey,
	}, nil
}

func parseRSAKey(keyData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// PKCS#1 first, then PKCS#8
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return rsaKey, nil
}

// Domain returns the signing domain
func (s *DKIMSigner) Domain() string {
	return s.domain
}

// Sign reads the message from r and writes the signed message to w
func (s *DKIMSigner) Sign(w io.Writer, r io.Reader) error {
	options := &dkim.SignOptions{
		Domain:   s.domain,
		Selector: s.selector,
		Signer:   s.privateKey,
		Hash:     crypto.SHA256,
		HeaderKeys: []string{
			"From",
			"To",
			"Cc",
			"Reply-To",
			"Subject",
			"Date",
			"Message-ID",
			"Content-Type",
			"MIME-Version",
		},
	}

	return dkim.Sign(w, r, options)
}

// SignMessage returns raw with a DKIM-Signature header prepended
func (s *DKIMSigner) SignMessage(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(raw) + 1024)
	if err := s.Sign(&buf, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("dkim sign: %w", err)
	}
	return buf.Bytes(), nil
}
