package commands

import (
	"context"

	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/smtp"
	"github.com/fenilsonani/mailbridge/internal/validation"
)

const smtpNotConnected = "Not connected to SMTP server. Provide --server, --username, --password (or --account) to auto-connect."

const sendPrefix = "Failed to send email: "

type sendRequest struct {
	To          []string `json:"to" validate:"required,dive,mailaddr"`
	Subject     string   `json:"subject" validate:"required"`
	Body        string   `json:"body" validate:"required"`
	From        string   `json:"from" validate:"omitempty,mailaddr"`
	Cc          []string `json:"cc" validate:"omitempty,dive,mailaddr"`
	Bcc         []string `json:"bcc" validate:"omitempty,dive,mailaddr"`
	ReplyTo     string   `json:"reply_to" validate:"omitempty,mailaddr"`
	Attachments []string `json:"attachments"`
}

type htmlRequest struct {
	To       []string `json:"to" validate:"required,dive,mailaddr"`
	Subject  string   `json:"subject" validate:"required"`
	HTMLBody string   `json:"html_body" validate:"required"`
	TextBody string   `json:"text_body"`
	From     string   `json:"from" validate:"omitempty,mailaddr"`
	Cc       []string `json:"cc" validate:"omitempty,dive,mailaddr"`
	Bcc      []string `json:"bcc" validate:"omitempty,dive,mailaddr"`
	ReplyTo  string   `json:"reply_to" validate:"omitempty,mailaddr"`
}

type attachmentRequest struct {
	Attachments []string `json:"attachments" validate:"required"`
}

func (s *Session) executeSMTP(ctx context.Context, command string, args Args) Response {
	ctx = logging.WithProtocol(ctx, "smtp")

	switch command {
	case "connect":
		return s.smtpConnect(ctx, args)
	case "disconnect":
		return s.smtpDisconnect()
	case "send":
		return s.smtpSend(ctx, args)
	case "send-html":
		return s.smtpSendHTML(ctx, args)
	case "send-with-attachment":
		return s.smtpSendWithAttachment(ctx, args)
	}
	return failure("Unknown command: %s", command)
}

// echoSettings returns the sent-folder IMAP target for a connection:
// explicit imap_* arguments, else the profile the credentials came from.
func echoSettings(args Args, creds credentials) (smtp.EchoSettings, error) {
	var echo smtp.EchoSettings
	if creds.Profile != nil {
		ssl := creds.Profile.IMAPSSL
		echo = smtp.EchoSettings{
			Server: creds.Profile.IMAPServer,
			Port:   creds.Profile.IMAPPort,
			SSL:    &ssl,
		}
	}

	if server := args.String("imap_server"); server != "" {
		echo.Server = server
	}
	port, err := args.Int("imap_port", 0)
	if err != nil {
		return echo, err
	}
	if port != 0 {
		if err := validation.Port(port); err != nil {
			return echo, &validation.ArgumentError{Field: "imap_port", Message: err.Error()}
		}
		echo.Port = port
	}
	if args.Has("imap_ssl") {
		ssl, err := args.Bool("imap_ssl", true)
		if err != nil {
			return echo, err
		}
		echo.SSL = &ssl
	}
	return echo, nil
}

// smtpFor returns the explicit session when one is live, or connects one
// for this command and returns a release func that disconnects it.
func (s *Session) smtpFor(ctx context.Context, args Args) (*smtp.MailSender, func(), error) {
	if s.smtp.Connected() {
		return s.smtp, func() {}, nil
	}

	creds, err := s.resolve(args, smtpKeys)
	if err != nil {
		return nil, nil, err
	}
	if !creds.complete() {
		return nil, nil, newCommandError(smtpNotConnected)
	}
	if err := creds.check(); err != nil {
		return nil, nil, err
	}
	echo, err := echoSettings(args, creds)
	if err != nil {
		return nil, nil, err
	}

	sender := s.newMailSender()
	if err := sender.Connect(ctx, creds.Server, creds.Username, creds.Password, creds.Port, creds.Secure); err != nil {
		return nil, nil, newCommandError("Auto-connect failed: %v", err)
	}
	sender.SetEcho(echo)
	metrics.RecordConnection("smtp", "auto")
	return sender, sender.Disconnect, nil
}

func (s *Session) smtpConnect(ctx context.Context, args Args) Response {
	const prefix = "Connection failed: "

	creds, err := s.resolve(args, smtpKeys)
	if err != nil {
		return fail(prefix, err)
	}
	if err := creds.requireComplete(); err != nil {
		return fail(prefix, err)
	}
	if err := creds.check(); err != nil {
		return fail(prefix, err)
	}
	echo, err := echoSettings(args, creds)
	if err != nil {
		return fail(prefix, err)
	}

	s.smtp.Disconnect()
	if err := s.smtp.Connect(ctx, creds.Server, creds.Username, creds.Password, creds.Port, creds.Secure); err != nil {
		return fail(prefix, err)
	}
	s.smtp.SetEcho(echo)
	metrics.RecordConnection("smtp", "explicit")

	return success(map[string]any{
		"server":    creds.Server,
		"username":  creds.Username,
		"port":      creds.Port,
		"tls":       creds.Secure,
		"connected": true,
	})
}

func (s *Session) smtpDisconnect() Response {
	if !s.smtp.Connected() {
		return failure("Not connected to SMTP server")
	}
	s.smtp.Disconnect()
	return success(map[string]any{"disconnected": true})
}

func (s *Session) withSMTP(ctx context.Context, args Args, fn func(*smtp.MailSender) (*smtp.SendResult, error)) Response {
	sender, release, err := s.smtpFor(ctx, args)
	if err != nil {
		return fail(sendPrefix, err)
	}
	defer release()

	result, err := fn(sender)
	if err != nil {
		metrics.RecordError("smtp", "send")
		return fail(sendPrefix, err)
	}
	return success(result)
}

func plainRequest(args Args) sendRequest {
	return sendRequest{
		To:          args.Strings("to"),
		Subject:     args.String("subject"),
		Body:        args.String("body"),
		From:        args.String("from"),
		Cc:          args.Strings("cc"),
		Bcc:         args.Strings("bcc"),
		ReplyTo:     args.String("reply_to"),
		Attachments: args.Strings("attachments"),
	}
}

func (r sendRequest) message(html bool) smtp.Message {
	return smtp.Message{
		From:    r.From,
		To:      r.To,
		Cc:      r.Cc,
		Bcc:     r.Bcc,
		ReplyTo: r.ReplyTo,
		Subject: r.Subject,
		Body:    r.Body,
		HTML:    html,
	}
}

func (s *Session) smtpSend(ctx context.Context, args Args) Response {
	req := plainRequest(args)
	if err := validation.Struct(&req); err != nil {
		return fail(sendPrefix, err)
	}

	return s.withSMTP(ctx, args, func(sender *smtp.MailSender) (*smtp.SendResult, error) {
		return sender.Send(ctx, req.message(false))
	})
}

func (s *Session) smtpSendHTML(ctx context.Context, args Args) Response {
	req := htmlRequest{
		To:       args.Strings("to"),
		Subject:  args.String("subject"),
		HTMLBody: args.String("html_body"),
		TextBody: args.String("text_body"),
		From:     args.String("from"),
		Cc:       args.Strings("cc"),
		Bcc:      args.Strings("bcc"),
		ReplyTo:  args.String("reply_to"),
	}
	if err := validation.Struct(&req); err != nil {
		return fail(sendPrefix, err)
	}

	return s.withSMTP(ctx, args, func(sender *smtp.MailSender) (*smtp.SendResult, error) {
		return sender.Send(ctx, smtp.Message{
			From:     req.From,
			To:       req.To,
			Cc:       req.Cc,
			Bcc:      req.Bcc,
			ReplyTo:  req.ReplyTo,
			Subject:  req.Subject,
			Body:     req.HTMLBody,
			HTML:     true,
			TextBody: req.TextBody,
		})
	})
}

func (s *Session) smtpSendWithAttachment(ctx context.Context, args Args) Response {
	req := plainRequest(args)
	if err := validation.Struct(&req); err != nil {
		return fail(sendPrefix, err)
	}
	if err := validation.Struct(&attachmentRequest{Attachments: req.Attachments}); err != nil {
		return fail(sendPrefix, err)
	}
	html, err := args.Bool("html", false)
	if err != nil {
		return fail(sendPrefix, err)
	}

	// Attachments are checked before any connection is opened.
	if _, err := smtp.InspectAttachments(req.Attachments, int64(s.cfg.Limits.MaxAttachmentBytes)); err != nil {
		return fail(sendPrefix, err)
	}

	return s.withSMTP(ctx, args, func(sender *smtp.MailSender) (*smtp.SendResult, error) {
		return sender.SendWithAttachments(ctx, req.message(html), req.Attachments)
	})
}
