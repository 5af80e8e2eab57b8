// Package commands maps tool commands onto the IMAP, SMTP and profile
// layers and renders every outcome as a JSON envelope.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/fenilsonani/mailbridge/internal/audit"
	"github.com/fenilsonani/mailbridge/internal/config"
	"github.com/fenilsonani/mailbridge/internal/imap"
	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/profile"
	"github.com/fenilsonani/mailbridge/internal/security"
	"github.com/fenilsonani/mailbridge/internal/smtp"
)

// Options wires a Session to its collaborators. Zero fields get production
// defaults.
type Options struct {
	Config   *config.Config
	Logger   *logging.Logger
	Profiles *profile.Manager
	Audit    *audit.Logger
	Signer   *security.DKIMSigner

	// IMAPDialer opens IMAP connections, including the sent-folder echo.
	IMAPDialer imap.Dialer
	// Getenv reads credential environment variables.
	Getenv func(string) string
}

// Session holds at most one explicitly connected IMAP session and one SMTP
// session. Connections opened implicitly for a single command are closed
// when that command returns. A Session is not safe for concurrent use.
type Session struct {
	cfg      *config.Config
	logger   *logging.Logger
	profiles *profile.Manager
	audit    *audit.Logger
	signer   *security.DKIMSigner
	dialer   imap.Dialer
	getenv   func(string) string

	imap *imap.MailStore
	smtp *smtp.MailSender
}

// NewSession creates a session with no live connections.
func NewSession(opts Options) *Session {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Profiles == nil {
		opts.Profiles = profile.NewManager(opts.Config.Profiles.Path, opts.Logger)
	}
	if opts.IMAPDialer == nil {
		opts.IMAPDialer = &imap.NetDialer{
			Timeout:            opts.Config.ConnectTimeout(),
			InsecureSkipVerify: opts.Config.TLS.InsecureSkipVerify,
		}
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	s := &Session{
		cfg:      opts.Config,
		logger:   opts.Logger.Commands(),
		profiles: opts.Profiles,
		audit:    opts.Audit,
		signer:   opts.Signer,
		dialer:   opts.IMAPDialer,
		getenv:   opts.Getenv,
	}
	s.imap = s.newMailStore()
	s.smtp = s.newMailSender()
	return s
}

func (s *Session) newMailStore() *imap.MailStore {
	return imap.NewMailStore(s.dialer, s.logger)
}

func (s *Session) newMailSender() *smtp.MailSender {
	return smtp.NewMailSender(smtp.Options{
		Timeout:            s.cfg.ConnectTimeout(),
		InsecureSkipVerify: s.cfg.TLS.InsecureSkipVerify,
		MaxAttachmentBytes: int64(s.cfg.Limits.MaxAttachmentBytes),
		Signer:             s.signer,
		Profiles:           s.profiles,
		EchoConnector:      smtp.IMAPEchoConnector(s.dialer, s.logger),
	}, s.logger)
}

// Profiles returns the profile store the session resolves accounts from.
func (s *Session) Profiles() *profile.Manager {
	return s.profiles
}

// Close disconnects both persistent sessions.
func (s *Session) Close() {
	s.imap.Disconnect()
	s.smtp.Disconnect()
}

// Execute runs one command and records its outcome.
func (s *Session) Execute(ctx context.Context, tool, command string, args Args) Response {
	if args == nil {
		args = Args{}
	}
	ctx = logging.WithCommand(ctx, tool+" "+command)
	if name := args.String("account"); name != "" {
		ctx = logging.WithAccount(ctx, name)
	}
	if mailbox := args.String("mailbox"); mailbox != "" && tool == ToolIMAP {
		ctx = logging.WithMailbox(ctx, mailbox)
	}
	start := time.Now()

	var resp Response
	switch tool {
	case ToolIMAP:
		resp = s.executeIMAP(ctx, command, args)
	case ToolSMTP:
		resp = s.executeSMTP(ctx, command, args)
	case ToolProfile:
		resp = s.executeProfile(ctx, command, args)
	case ToolAudit:
		resp = s.executeAudit(ctx, command, args)
	default:
		resp = failure("Unknown tool: %s", tool)
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case resp.Failed():
		outcome = metrics.OutcomeError
		s.logger.WarnContext(ctx, "Command failed", "error", resp.Error, "duration", time.Since(start))
	case resp.Status == StatusSandbox:
		outcome = metrics.OutcomeSandbox
	}
	metrics.RecordCommand(tool, command, outcome)
	s.logger.DebugContext(ctx, "Command finished", "outcome", outcome, "duration", time.Since(start))
	return resp
}
