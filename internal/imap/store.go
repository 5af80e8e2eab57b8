// Package imap provides a stateful IMAP session that fetches, normalizes and
// manages messages on a remote server.
package imap

import (
	"context"

	"github.com/emersion/go-imap/v2"

	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/normalize"
)

// MailStore holds at most one live IMAP session and the selected mailbox.
// It is not safe for concurrent use.
type MailStore struct {
	dialer Dialer
	logger *logging.Logger

	conn     Conn
	server   string
	username string
	mailbox  string
}

// NewMailStore creates a disconnected store.
func NewMailStore(dialer Dialer, logger *logging.Logger) *MailStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MailStore{
		dialer: dialer,
		logger: logger.IMAP(),
	}
}

// Connected reports whether a session is live.
func (s *MailStore) Connected() bool {
	return s.conn != nil
}

// Server returns the connected server host.
func (s *MailStore) Server() string {
	return s.server
}

// Username returns the authenticated user.
func (s *MailStore) Username() string {
	return s.username
}

// CurrentMailbox returns the selected mailbox, or "".
func (s *MailStore) CurrentMailbox() string {
	return s.mailbox
}

// Connect opens a session and logs in. A rejected LOGIN is retried once with
// AUTHENTICATE PLAIN before an AuthError is returned.
func (s *MailStore) Connect(ctx context.Context, server, username, password string, port int, useSSL bool) error {
	ctx = logging.WithProtocol(ctx, "imap")

	conn, err := s.dialer.Dial(ctx, server, port, useSSL)
	if err != nil {
		s.logger.ErrorContext(ctx, "Connection failed", err, "server", server, "port", port)
		return err
	}

	if err := conn.Login(username, password); err != nil {
		if !isAuthFailure(err) {
			conn.Close()
			s.logger.ErrorContext(ctx, "Connection failed", err, "server", server)
			return err
		}

		s.logger.DebugContext(ctx, "LOGIN rejected, trying AUTHENTICATE PLAIN", "server", server)
		if plainErr := conn.AuthenticatePlain(username, password); plainErr != nil {
			metrics.RecordAuth(false, "imap")
			conn.Close()
			return &AuthError{Login: err, Plain: plainErr}
		}
	}
	metrics.RecordAuth(true, "imap")

	s.conn = conn
	s.server = server
	s.username = username
	s.mailbox = ""

	s.logger.InfoContext(ctx, "Connected",
		"server", server,
		"username", logging.MaskUsername(username),
	)
	return nil
}

// Disconnect logs out and drops the session. Logout failures are ignored.
func (s *MailStore) Disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Logout(); err != nil {
		s.logger.Debug("Logout failed", "error", err)
	}
	_ = s.conn.Close()

	s.conn = nil
	s.server = ""
	s.username = ""
	s.mailbox = ""
	s.logger.Info("Disconnected from IMAP server")
}

// ListMailboxes returns every mailbox on the server in LIST order.
func (s *MailStore) ListMailboxes() ([]MailboxInfo, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn.List()
}

// SelectMailbox selects name and makes it current.
func (s *MailStore) SelectMailbox(name string) (*MailboxStatus, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	status, err := s.conn.Select(name)
	if err != nil {
		return nil, err
	}
	s.mailbox = name
	return status, nil
}

// Search returns the UIDs matching the criteria string. Unrecognized
// criteria match every message.
func (s *MailStore) Search(criteria string) ([]uint32, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	parsed, ok := ParseCriteria(criteria)
	if !ok {
		s.logger.Warn("Unknown search criteria, using ALL", "criteria", criteria)
	}

	uids, err := s.conn.Search(parsed)
	if err != nil {
		return nil, err
	}
	if uids == nil {
		uids = []uint32{}
	}
	return uids, nil
}

// FetchOptions controls how a message is retrieved.
type FetchOptions struct {
	Limits normalize.Limits
	// Peek leaves the \Seen flag untouched.
	Peek bool
}

// Fetch retrieves and normalizes one message. The record carries the
// server flags and the current mailbox.
func (s *MailStore) Fetch(uid uint32, opts FetchOptions) (*normalize.Email, error) {
	raw, err := s.FetchRaw(uid, opts.Peek)
	if err != nil {
		return nil, err
	}

	email := normalize.Normalize(raw.Raw, uid, opts.Limits)
	email.Flags = raw.Flags
	if s.mailbox != "" {
		email.SetMailbox(s.mailbox)
	}
	metrics.MessagesFetched.Inc()
	return email, nil
}

// FetchRaw retrieves one message without parsing it.
func (s *MailStore) FetchRaw(uid uint32, peek bool) (*FetchedMessage, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	msg, err := s.conn.Fetch(uid, peek)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, notFound(uid)
	}
	if msg.Flags == nil {
		msg.Flags = []string{}
	}
	return msg, nil
}

// MarkRead adds \Seen to the messages.
func (s *MailStore) MarkRead(uids []uint32) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.StoreFlags(uids, true, imap.FlagSeen)
}

// MarkUnread removes \Seen from the messages.
func (s *MailStore) MarkUnread(uids []uint32) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.StoreFlags(uids, false, imap.FlagSeen)
}

// Delete flags the messages \Deleted and expunges the mailbox. This is
// permanent.
func (s *MailStore) Delete(uids []uint32) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.StoreFlags(uids, true, imap.FlagDeleted); err != nil {
		return err
	}
	return s.conn.Expunge()
}

// Move copies the messages to target, then deletes them from the current
// mailbox. A failure after the copy leaves the messages in both mailboxes.
func (s *MailStore) Move(uids []uint32, target string) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.Copy(uids, target); err != nil {
		return err
	}
	if err := s.conn.StoreFlags(uids, true, imap.FlagDeleted); err != nil {
		return err
	}
	return s.conn.Expunge()
}

// Append stores raw in mailbox. With no flags the message is stored \Seen.
// The returned UID is 0 when the server does not report one.
func (s *MailStore) Append(mailbox string, raw []byte, flags ...imap.Flag) (uint32, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	if len(flags) == 0 {
		flags = []imap.Flag{imap.FlagSeen}
	}

	uid, err := s.conn.Append(mailbox, raw, flags)
	if err != nil {
		s.logger.Warn("Failed to append message", "mailbox", mailbox, "error", err)
		return 0, err
	}
	return uid, nil
}

// FindSentFolder returns the account's sent mailbox, or "" when none is
// recognizable. Listing failures are logged and reported as "".
func (s *MailStore) FindSentFolder() (string, error) {
	if s.conn == nil {
		return "", ErrNotConnected
	}

	mailboxes, err := s.conn.List()
	if err != nil {
		s.logger.Warn("Failed to find Sent folder", "error", err)
		return "", nil
	}

	names := make([]string, len(mailboxes))
	for i, m := range mailboxes {
		names[i] = m.Name
	}
	return MatchSentFolder(names), nil
}
