package security

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
)

func generateTestKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "dkim.pem")
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}

	return keyPath, privateKey
}

const testMessage = "From: sender@example.com\r\n" +
	"To: recipient@example.com\r\n" +
	"Subject: Test Message\r\n" +
	"Date: Thu, 19 Dec 2024 12:00:00 +0000\r\n" +
	"Message-ID: <test@example.com>\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"This is a test message.\r\n"

func TestNewDKIMSigner(t *testing.T) {
	keyPath, _ := generateTestKey(t)

	signer, err := NewDKIMSigner("Example.COM", "mail", keyPath)
	if err != nil {
		t.Fatalf("NewDKIMSigner failed: %v", err)
	}

	if signer.Domain() != "example.com" {
		t.Errorf("Domain() = %q, want example.com", signer.Domain())
	}
	if signer.selector != "mail" {
		t.Errorf("selector = %q, want mail", signer.selector)
	}
	if signer.privateKey == nil {
		t.Error("Expected non-nil private key")
	}
}

func TestNewDKIMSigner_Errors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.pem")
	if err := os.WriteFile(invalid, []byte("not a valid PEM key"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nonexistent.pem")},
		{"invalid key", invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDKIMSigner("example.com", "mail", tt.path); err == nil {
				t.Error("NewDKIMSigner() error = nil, want error")
			}
		})
	}
}

func TestDKIMSigner_PKCS8Key(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(t.TempDir(), "pkcs8.pem")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}), 0600); err != nil {
		t.Fatal(err)
	}

	signer, err := NewDKIMSigner("example.com", "mail", keyPath)
	if err != nil {
		t.Fatalf("Failed to load PKCS#8 key: %v", err)
	}
	if signer.privateKey == nil {
		t.Error("Expected non-nil private key")
	}
}

func TestDKIMSigner_SignMessage(t *testing.T) {
	keyPath, _ := generateTestKey(t)

	signer, err := NewDKIMSigner("example.com", "mail", keyPath)
	if err != nil {
		t.Fatalf("NewDKIMSigner failed: %v", err)
	}

	signed, err := signer.SignMessage([]byte(testMessage))
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	s := string(signed)
	if !strings.HasPrefix(s, "DKIM-Signature:") {
		t.Error("Expected DKIM-Signature header first in signed message")
	}
	for _, want := range []string{"d=example.com", "s=mail", "This is a test message."} {
		if !strings.Contains(s, want) {
			t.Errorf("signed message missing %q", want)
		}
	}
}

func TestDKIMSigner_SignatureVerifies(t *testing.T) {
	keyPath, privateKey := generateTestKey(t)

	signer, err := NewDKIMSigner("example.com", "mail", keyPath)
	if err != nil {
		t.Fatalf("NewDKIMSigner failed: %v", err)
	}

	signed, err := signer.SignMessage([]byte(testMessage))
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	pub, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	record := "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != "mail._domainkey.example.com" {
				t.Errorf("LookupTXT(%q), want mail._domainkey.example.com", domain)
			}
			return []string{record}, nil
		},
	})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(verifications) != 1 {
		t.Fatalf("verifications = %d, want 1", len(verifications))
	}
	if verifications[0].Err != nil {
		t.Errorf("verification error = %v", verifications[0].Err)
	}
}
