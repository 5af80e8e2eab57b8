package commands

import (
	"context"

	"github.com/fenilsonani/mailbridge/internal/audit"
	"github.com/fenilsonani/mailbridge/internal/imap"
	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/normalize"
	"github.com/fenilsonani/mailbridge/internal/storage/maildir"
	"github.com/fenilsonani/mailbridge/internal/validation"
)

const imapNotConnected = "Not connected to IMAP server. Provide --server, --username, --password to auto-connect, or call 'connect' first."

type selectRequest struct {
	Mailbox string `json:"mailbox" validate:"required"`
}

type searchRequest struct {
	Criteria string `json:"criteria"`
	Mailbox  string `json:"mailbox"`
}

type fetchRequest struct {
	MessageID          string `json:"message_id" validate:"required"`
	MaxBodyBytes       int    `json:"max_body_bytes" validate:"gte=0"`
	MaxAttachmentBytes int    `json:"max_attachment_bytes" validate:"gte=0"`
	Peek               bool   `json:"peek"`
	Mailbox            string `json:"mailbox"`
}

type updateRequest struct {
	MessageIDs    []string `json:"message_ids" validate:"required"`
	TargetMailbox string   `json:"target_mailbox"`
	Sandbox       bool     `json:"sandbox"`
	Mailbox       string   `json:"mailbox"`
}

type moveRequest struct {
	TargetMailbox string `json:"target_mailbox" validate:"required"`
}

type exportRequest struct {
	MessageID string `json:"message_id" validate:"required"`
	Maildir   string `json:"maildir" validate:"required"`
	Mailbox   string `json:"mailbox"`
}

func (s *Session) executeIMAP(ctx context.Context, command string, args Args) Response {
	ctx = logging.WithProtocol(ctx, "imap")

	switch command {
	case "connect":
		return s.imapConnect(ctx, args)
	case "disconnect":
		return s.imapDisconnect()
	case "list-mailboxes":
		return s.imapListMailboxes(ctx, args)
	case "select-mailbox":
		return s.imapSelect(ctx, args)
	case "search":
		return s.imapSearch(ctx, args)
	case "fetch":
		return s.imapFetch(ctx, args)
	case "mark-read":
		return s.imapUpdate(ctx, args, updateMarkRead)
	case "mark-unread":
		return s.imapUpdate(ctx, args, updateMarkUnread)
	case "delete":
		return s.imapUpdate(ctx, args, updateDelete)
	case "move":
		return s.imapUpdate(ctx, args, updateMove)
	case "export":
		return s.imapExport(ctx, args)
	}
	return failure("Unknown command: %s", command)
}

// imapFor returns the explicit session when one is live. Otherwise it
// connects with the resolved credentials and returns a release func that
// disconnects again.
func (s *Session) imapFor(ctx context.Context, args Args) (*imap.MailStore, func(), error) {
	if s.imap.Connected() {
		return s.imap, func() {}, nil
	}

	creds, err := s.resolve(args, imapKeys)
	if err != nil {
		return nil, nil, err
	}
	if !creds.complete() {
		return nil, nil, newCommandError(imapNotConnected)
	}
	if err := creds.check(); err != nil {
		return nil, nil, err
	}

	store := s.newMailStore()
	if err := store.Connect(ctx, creds.Server, creds.Username, creds.Password, creds.Port, creds.Secure); err != nil {
		connectFailed(err)
		return nil, nil, newCommandError("Auto-connect failed: %v", err)
	}
	metrics.RecordConnection("imap", "auto")
	return store, store.Disconnect, nil
}

// connectFailed counts a failed IMAP connect as an auth or transport error.
func connectFailed(err error) {
	kind := "connect"
	if imap.IsAuthError(err) {
		kind = "auth"
	}
	metrics.RecordError("imap", kind)
}

// withIMAP runs fn against a session and renders the outcome. Errors from
// fn are prefixed; resolution errors are rendered as they are.
func (s *Session) withIMAP(ctx context.Context, args Args, prefix string, fn func(*imap.MailStore) (any, error)) Response {
	store, release, err := s.imapFor(ctx, args)
	if err != nil {
		return fail(prefix, err)
	}
	defer release()

	result, err := fn(store)
	if err != nil {
		metrics.RecordError("imap", "operation")
		return fail(prefix, err)
	}
	return success(result)
}

// selectFor selects mailbox when given, or INBOX when nothing is selected.
func selectFor(store *imap.MailStore, mailbox string) error {
	switch {
	case mailbox != "":
		_, err := store.SelectMailbox(mailbox)
		return err
	case store.CurrentMailbox() == "":
		_, err := store.SelectMailbox("INBOX")
		return err
	}
	return nil
}

func (s *Session) imapConnect(ctx context.Context, args Args) Response {
	const prefix = "Connection failed: "

	creds, err := s.resolve(args, imapKeys)
	if err != nil {
		return fail(prefix, err)
	}
	if err := creds.requireComplete(); err != nil {
		return fail(prefix, err)
	}
	if err := creds.check(); err != nil {
		return fail(prefix, err)
	}

	s.imap.Disconnect()
	if err := s.imap.Connect(ctx, creds.Server, creds.Username, creds.Password, creds.Port, creds.Secure); err != nil {
		connectFailed(err)
		return fail(prefix, err)
	}
	metrics.RecordConnection("imap", "explicit")

	return success(map[string]any{
		"server":    creds.Server,
		"username":  creds.Username,
		"port":      creds.Port,
		"ssl":       creds.Secure,
		"connected": true,
	})
}

func (s *Session) imapDisconnect() Response {
	if !s.imap.Connected() {
		return failure("Not connected to IMAP server")
	}
	s.imap.Disconnect()
	return success(map[string]any{"disconnected": true})
}

func (s *Session) imapListMailboxes(ctx context.Context, args Args) Response {
	return s.withIMAP(ctx, args, "Failed to list mailboxes: ", func(store *imap.MailStore) (any, error) {
		mailboxes, err := store.ListMailboxes()
		if err != nil {
			return nil, err
		}
		if mailboxes == nil {
			mailboxes = []imap.MailboxInfo{}
		}
		return map[string]any{"mailboxes": mailboxes}, nil
	})
}

func (s *Session) imapSelect(ctx context.Context, args Args) Response {
	const prefix = "Failed to select mailbox: "

	req := selectRequest{Mailbox: args.String("mailbox")}
	if err := validation.Struct(&req); err != nil {
		return fail(prefix, err)
	}

	return s.withIMAP(ctx, args, prefix, func(store *imap.MailStore) (any, error) {
		return store.SelectMailbox(req.Mailbox)
	})
}

func (s *Session) imapSearch(ctx context.Context, args Args) Response {
	req := searchRequest{
		Criteria: args.String("criteria"),
		Mailbox:  args.String("mailbox"),
	}
	if req.Criteria == "" {
		req.Criteria = "ALL"
	}

	return s.withIMAP(ctx, args, "Search failed: ", func(store *imap.MailStore) (any, error) {
		if err := selectFor(store, req.Mailbox); err != nil {
			return nil, err
		}
		uids, err := store.Search(req.Criteria)
		if err != nil {
			return nil, err
		}
		if uids == nil {
			uids = []uint32{}
		}
		return map[string]any{
			"criteria":    req.Criteria,
			"message_ids": uids,
			"count":       len(uids),
		}, nil
	})
}

func (s *Session) imapFetch(ctx context.Context, args Args) Response {
	const prefix = "Failed to fetch email: "

	req := fetchRequest{
		MessageID: args.String("message_id"),
		Mailbox:   args.String("mailbox"),
	}
	var err error
	if req.MaxBodyBytes, err = args.Int("max_body_bytes", s.cfg.Limits.MaxBodyBytes); err != nil {
		return fail(prefix, err)
	}
	if req.MaxAttachmentBytes, err = args.Int("max_attachment_bytes", s.cfg.Limits.MaxAttachmentBytes); err != nil {
		return fail(prefix, err)
	}
	if req.Peek, err = args.Bool("peek", false); err != nil {
		return fail(prefix, err)
	}
	if err := validation.Struct(&req); err != nil {
		return fail(prefix, err)
	}
	uid, err := parseUID(req.MessageID)
	if err != nil {
		return fail(prefix, err)
	}

	ctx = logging.WithMessageID(ctx, req.MessageID)
	return s.withIMAP(ctx, args, prefix, func(store *imap.MailStore) (any, error) {
		if err := selectFor(store, req.Mailbox); err != nil {
			return nil, err
		}
		return store.Fetch(uid, imap.FetchOptions{
			Limits: normalize.Limits{
				MaxBodyBytes:       req.MaxBodyBytes,
				MaxAttachmentBytes: int64(req.MaxAttachmentBytes),
			},
			Peek: req.Peek,
		})
	})
}

// update describes one destructive command.
type update struct {
	verb      string // result key suffix: would_<verb>
	doneKey   string // result key on success
	prefix    string
	event     audit.EventType
	needsDest bool
	apply     func(store *imap.MailStore, uids []uint32, target string) error
}

var (
	updateMarkRead = update{
		verb:    "mark_read",
		doneKey: "marked_read",
		prefix:  "Failed to mark as read: ",
		event:   audit.EventMarkRead,
		apply: func(store *imap.MailStore, uids []uint32, _ string) error {
			return store.MarkRead(uids)
		},
	}
	updateMarkUnread = update{
		verb:    "mark_unread",
		doneKey: "marked_unread",
		prefix:  "Failed to mark as unread: ",
		event:   audit.EventMarkUnread,
		apply: func(store *imap.MailStore, uids []uint32, _ string) error {
			return store.MarkUnread(uids)
		},
	}
	updateDelete = update{
		verb:    "delete",
		doneKey: "deleted",
		prefix:  "Failed to delete: ",
		event:   audit.EventDelete,
		apply: func(store *imap.MailStore, uids []uint32, _ string) error {
			return store.Delete(uids)
		},
	}
	updateMove = update{
		verb:      "move",
		doneKey:   "moved",
		prefix:    "Failed to move: ",
		event:     audit.EventMove,
		needsDest: true,
		apply: func(store *imap.MailStore, uids []uint32, target string) error {
			return store.Move(uids, target)
		},
	}
)

// imapUpdate runs a destructive command. Arguments are validated first; a
// sandbox run never opens a connection.
func (s *Session) imapUpdate(ctx context.Context, args Args, u update) Response {
	req := updateRequest{
		MessageIDs:    args.Strings("message_ids"),
		TargetMailbox: args.String("target_mailbox"),
		Mailbox:       args.String("mailbox"),
	}
	var err error
	if req.Sandbox, err = args.Bool("sandbox", false); err != nil {
		return fail(u.prefix, err)
	}
	if err := validation.Struct(&req); err != nil {
		return fail(u.prefix, err)
	}
	if u.needsDest {
		if err := validation.Struct(&moveRequest{TargetMailbox: req.TargetMailbox}); err != nil {
			return fail(u.prefix, err)
		}
	}
	uids, err := parseUIDs(req.MessageIDs)
	if err != nil {
		return fail(u.prefix, err)
	}

	details := map[string]any{"message_ids": uids}
	if u.needsDest {
		details["target_mailbox"] = req.TargetMailbox
	}

	if req.Sandbox {
		s.record(ctx, u.event, s.actor(args), req.Mailbox, details, true)
		result := map[string]any{
			"message_ids":     uids,
			"would_" + u.verb: true,
		}
		if u.needsDest {
			result["target_mailbox"] = req.TargetMailbox
		}
		return sandboxed(result)
	}

	return s.withIMAP(ctx, args, u.prefix, func(store *imap.MailStore) (any, error) {
		if err := selectFor(store, req.Mailbox); err != nil {
			return nil, err
		}
		if err := u.apply(store, uids, req.TargetMailbox); err != nil {
			return nil, err
		}
		s.record(ctx, u.event, store.Username(), store.CurrentMailbox(), details, false)

		result := map[string]any{
			"message_ids": uids,
			u.doneKey:     true,
		}
		if u.needsDest {
			result["target_mailbox"] = req.TargetMailbox
		}
		return result, nil
	})
}

// actor names the account a sandboxed command would have run as.
func (s *Session) actor(args Args) string {
	if s.imap.Connected() {
		return s.imap.Username()
	}
	creds, err := s.resolve(args, imapKeys)
	if err != nil {
		return ""
	}
	return creds.Username
}

// record writes an audit event. Failures are logged and dropped.
func (s *Session) record(ctx context.Context, event audit.EventType, actor, mailbox string, details map[string]any, sandbox bool) {
	if err := s.audit.Log(ctx, actor, event, mailbox, details, sandbox); err != nil {
		metrics.RecordError("audit", "write")
		s.logger.WarnContext(ctx, "Failed to write audit event", "event", string(event), "error", err)
	}
}

func (s *Session) imapExport(ctx context.Context, args Args) Response {
	const prefix = "Failed to export email: "

	req := exportRequest{
		MessageID: args.String("message_id"),
		Maildir:   args.String("maildir"),
		Mailbox:   args.String("mailbox"),
	}
	if err := validation.Struct(&req); err != nil {
		return fail(prefix, err)
	}
	uid, err := parseUID(req.MessageID)
	if err != nil {
		return fail(prefix, err)
	}

	ctx = logging.WithMessageID(ctx, req.MessageID)
	return s.withIMAP(ctx, args, prefix, func(store *imap.MailStore) (any, error) {
		if err := selectFor(store, req.Mailbox); err != nil {
			return nil, err
		}
		msg, err := store.FetchRaw(uid, true)
		if err != nil {
			return nil, err
		}
		key, err := maildir.Export(req.Maildir, msg.Raw, msg.Flags)
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Exported message", "maildir", req.Maildir, "key", key)
		return map[string]any{
			"message_id": uid,
			"maildir":    req.Maildir,
			"key":        key,
		}, nil
	})
}
