package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/fenilsonani/mailbridge/internal/profile"
)

// errNoSentFolder marks an echo skipped because the account has no
// recognizable sent mailbox.
var errNoSentFolder = errors.New("no sent folder")

// SentFolderStore is the part of an IMAP session the echo needs.
type SentFolderStore interface {
	FindSentFolder() (string, error)
	Append(mailbox string, raw []byte, flags ...imap.Flag) (uint32, error)
	Disconnect()
}

// EchoConnector opens an authenticated IMAP session for the echo.
type EchoConnector func(ctx context.Context, target EchoTarget, username, password string) (SentFolderStore, error)

// ProfileLookup finds the IMAP settings that belong to an SMTP account.
type ProfileLookup interface {
	FindByUsername(username string) (profile.Profile, bool)
	Default() (profile.Profile, bool)
}

// EchoTarget is the IMAP endpoint that receives a copy of sent mail.
type EchoTarget struct {
	Server string
	Port   int
	SSL    bool
}

// EchoSettings are explicit IMAP overrides for the echo. Zero values mean
// unset.
type EchoSettings struct {
	Server string
	Port   int
	SSL    *bool
}

// DeriveIMAPHost guesses the IMAP host that pairs with an SMTP host.
func DeriveIMAPHost(smtpHost string) string {
	lower := strings.ToLower(smtpHost)
	switch {
	case strings.HasPrefix(lower, "mail."), strings.HasPrefix(lower, "smtp."):
		return "imap." + smtpHost[5:]
	case strings.HasPrefix(lower, "mail"):
		return "imap" + smtpHost[4:]
	}
	return smtpHost
}

// resolveEchoTarget picks the IMAP endpoint: explicit settings, then a
// profile with the same username or the default profile, then a host
// derived from the SMTP server.
func (s *MailSender) resolveEchoTarget() (EchoTarget, bool) {
	target := EchoTarget{Server: s.echo.Server, Port: s.echo.Port, SSL: true}
	if s.echo.SSL != nil {
		target.SSL = *s.echo.SSL
	}

	if target.Server == "" && s.profiles != nil {
		p, ok := s.profiles.FindByUsername(s.username)
		if !ok {
			p, ok = s.profiles.Default()
		}
		if ok && p.IMAPServer != "" {
			target.Server = p.IMAPServer
			if target.Port == 0 {
				target.Port = p.IMAPPort
			}
			if s.echo.SSL == nil {
				target.SSL = p.IMAPSSL
			}
		}
	}

	if target.Server == "" {
		target.Server = DeriveIMAPHost(s.host)
	}
	if target.Port == 0 {
		target.Port = 993
	}
	return target, target.Server != ""
}

// saveToSent appends raw to the account's sent mailbox. The caller logs and
// discards the error; it never affects a send result.
func (s *MailSender) saveToSent(ctx context.Context, raw []byte) error {
	if s.connectEcho == nil {
		return nil
	}

	target, ok := s.resolveEchoTarget()
	if !ok {
		return errNoSentFolder
	}

	store, err := s.connectEcho(ctx, target, s.username, s.password)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", target.Server, err)
	}
	defer store.Disconnect()

	folder, err := store.FindSentFolder()
	if err != nil {
		return fmt.Errorf("find sent folder: %w", err)
	}
	if folder == "" {
		return errNoSentFolder
	}

	if _, err := store.Append(folder, raw, imap.FlagSeen); err != nil {
		return fmt.Errorf("append to %s: %w", folder, err)
	}
	s.logger.DebugContext(ctx, "Saved sent message", "server", target.Server, "mailbox", folder)
	return nil
}
