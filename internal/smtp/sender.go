// Package smtp sends mail through an authenticated SMTP session and copies
// each sent message into the account's IMAP sent mailbox.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/fenilsonani/mailbridge/internal/imap"
	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/security"
)

// ErrNotConnected is returned by send operations without a live session.
var ErrNotConnected = errors.New("not connected to SMTP server")

const (
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultMaxAttachmentBytes caps each attachment file.
	DefaultMaxAttachmentBytes = 25 * 1024 * 1024
)

// Options configures a MailSender.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxAttachmentBytes int64

	// Signer, when set, DKIM-signs every composed message.
	Signer *security.DKIMSigner
	// Profiles resolves the echo target from stored accounts.
	Profiles ProfileLookup
	// EchoConnector opens the IMAP session for the sent-folder echo. When
	// nil the echo is disabled.
	EchoConnector EchoConnector
}

// SendResult describes a transmitted message.
type SendResult struct {
	Sent        bool             `json:"sent"`
	From        string           `json:"from"`
	To          []string         `json:"to"`
	Cc          []string         `json:"cc"`
	Bcc         []string         `json:"bcc"`
	Subject     string           `json:"subject"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
}

// MailSender holds at most one live SMTP session. It is not safe for
// concurrent use.
type MailSender struct {
	opts        Options
	logger      *logging.Logger
	signer      *security.DKIMSigner
	profiles    ProfileLookup
	connectEcho EchoConnector

	client   *smtp.Client
	host     string
	port     int
	username string
	// password is kept for the sent-folder echo login.
	password string
	useTLS   bool
	echo     EchoSettings

	now func() time.Time
}

// NewMailSender creates a disconnected sender.
func NewMailSender(opts Options, logger *logging.Logger) *MailSender {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConnectTimeout
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &MailSender{
		opts:        opts,
		logger:      logger.SMTP(),
		signer:      opts.Signer,
		profiles:    opts.Profiles,
		connectEcho: opts.EchoConnector,
		now:         time.Now,
	}
}

// IMAPEchoConnector returns an EchoConnector backed by imap.MailStore.
func IMAPEchoConnector(dialer imap.Dialer, logger *logging.Logger) EchoConnector {
	return func(ctx context.Context, target EchoTarget, username, password string) (SentFolderStore, error) {
		store := imap.NewMailStore(dialer, logger)
		if err := store.Connect(ctx, target.Server, username, password, target.Port, target.SSL); err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Connected reports whether a session is live.
func (s *MailSender) Connected() bool {
	return s.client != nil
}

// Host returns the connected server host.
func (s *MailSender) Host() string {
	return s.host
}

// Username returns the authenticated user.
func (s *MailSender) Username() string {
	return s.username
}

// SetEcho sets explicit IMAP settings for the sent-folder echo.
func (s *MailSender) SetEcho(settings EchoSettings) {
	s.echo = settings
}

// Connect dials host and authenticates with PLAIN. Port 465 uses implicit
// TLS; any other port upgrades with STARTTLS when useTLS is set.
func (s *MailSender) Connect(ctx context.Context, host, username, password string, port int, useTLS bool) error {
	ctx = logging.WithProtocol(ctx, "smtp")
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	tlsConfig := security.ClientTLSConfig(host, s.opts.InsecureSkipVerify)

	var (
		conn net.Conn
		err  error
	)
	if useTLS && port == 465 {
		td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Connection failed", err, "server", host, "port", port)
		return fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}

	// Greeting, STARTTLS and AUTH share the connect bound.
	_ = conn.SetDeadline(time.Now().Add(s.opts.Timeout))
	var client *smtp.Client
	if useTLS && port != 465 {
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	} else {
		client = smtp.NewClient(conn)
	}

	if err := client.Auth(sasl.NewPlainClient("", username, password)); err != nil {
		metrics.RecordAuth(false, "smtp")
		client.Close()
		s.logger.ErrorContext(ctx, "Authentication failed", err, "server", host)
		return fmt.Errorf("authentication failed: %w", err)
	}
	metrics.RecordAuth(true, "smtp")
	_ = conn.SetDeadline(time.Time{})

	s.client = client
	s.host = host
	s.port = port
	s.username = username
	s.password = password
	s.useTLS = useTLS

	s.logger.InfoContext(ctx, "Connected",
		"server", host,
		"port", port,
		"username", logging.MaskUsername(username),
	)
	return nil
}

// Disconnect sends QUIT, closing the socket if that fails. Errors are
// ignored and the session is always cleared.
func (s *MailSender) Disconnect() {
	if s.client == nil {
		return
	}
	if err := s.client.Quit(); err != nil {
		s.logger.Debug("QUIT failed", "error", err)
		_ = s.client.Close()
	}

	s.client = nil
	s.host = ""
	s.port = 0
	s.username = ""
	s.password = ""
	s.echo = EchoSettings{}
	s.logger.Info("Disconnected from SMTP server")
}

// Send composes and transmits a plain or HTML message.
func (s *MailSender) Send(ctx context.Context, m Message) (*SendResult, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}
	s.defaults(&m)

	raw, err := Compose(&m, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.transmit(ctx, &m, raw); err != nil {
		return nil, err
	}
	return s.result(&m), nil
}

// SendWithAttachments validates every attachment, then composes and
// transmits a multipart/mixed message. Nothing is sent when any attachment
// is missing or too large.
func (s *MailSender) SendWithAttachments(ctx context.Context, m Message, paths []string) (*SendResult, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}

	attachments, err := InspectAttachments(paths, s.opts.MaxAttachmentBytes)
	if err != nil {
		return nil, err
	}
	s.defaults(&m)

	raw, err := ComposeWithAttachments(&m, attachments, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.transmit(ctx, &m, raw); err != nil {
		return nil, err
	}

	res := s.result(&m)
	res.Attachments = attachments
	return res, nil
}

func (s *MailSender) defaults(m *Message) {
	if m.From == "" {
		m.From = s.username
	}
}

func (s *MailSender) result(m *Message) *SendResult {
	return &SendResult{
		Sent:    true,
		From:    m.From,
		To:      nonNil(m.To),
		Cc:      nonNil(m.Cc),
		Bcc:     nonNil(m.Bcc),
		Subject: m.Subject,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// transmit signs raw when configured, sends it, then echoes the sent bytes
// to the IMAP sent mailbox.
func (s *MailSender) transmit(ctx context.Context, m *Message, raw []byte) error {
	if s.signer != nil {
		signed, err := s.signer.SignMessage(raw)
		if err != nil {
			return err
		}
		raw = signed
	}

	rcpts := m.recipients()
	if err := s.client.SendMail(envelopeAddress(m.From), rcpts, bytes.NewReader(raw)); err != nil {
		return err
	}
	metrics.RecordSend(len(rcpts))

	switch err := s.saveToSent(ctx, raw); {
	case err == nil:
		if s.connectEcho != nil {
			metrics.RecordEcho("appended")
		}
	case errors.Is(err, errNoSentFolder):
		metrics.RecordEcho("skipped")
	default:
		metrics.RecordEcho("failed")
		s.logger.WarnContext(ctx, "Failed to save to Sent folder", "error", err)
	}
	return nil
}
