package commands

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/fenilsonani/mailbridge/internal/smtp"
)

type delivery struct {
	from string
	to   []string
	data string
}

type submissionBackend struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (b *submissionBackend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &submissionSession{backend: b}, nil
}

func (b *submissionBackend) all() []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]delivery(nil), b.deliveries...)
}

type submissionSession struct {
	backend *submissionBackend
	authed  bool
	from    string
	rcpts   []string
}

func (s *submissionSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *submissionSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "user@example.com" || password != "secret" {
			return gosmtp.ErrAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *submissionSession) Mail(from string, opts *gosmtp.MailOptions) error {
	if !s.authed {
		return gosmtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *submissionSession) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *submissionSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.deliveries = append(s.backend.deliveries, delivery{from: s.from, to: s.rcpts, data: string(data)})
	s.backend.mu.Unlock()
	return nil
}

func (s *submissionSession) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *submissionSession) Logout() error { return nil }

// startSubmission runs an in-process SMTP server and returns connection
// arguments for it. The sent-folder copy goes to the fake IMAP dialer.
func startSubmission(t *testing.T) (*submissionBackend, Args) {
	t.Helper()

	be := &submissionBackend{}
	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return be, Args{
		"server":      host,
		"username":    "user@example.com",
		"password":    "secret",
		"port":        port,
		"use_tls":     false,
		"imap_server": "imap.example.com",
		"imap_ssl":    false,
	}
}

func merge(a, b Args) Args {
	out := Args{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func TestSMTP_NotConnected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.run(ToolSMTP, "send", Args{
		"to":      []any{"bob@example.com"},
		"subject": "Hi",
		"body":    "Hello",
	})
	if resp.Error != smtpNotConnected {
		t.Errorf("Error = %q, want %q", resp.Error, smtpNotConnected)
	}

	if resp := env.run(ToolSMTP, "disconnect", nil); resp.Error != "Not connected to SMTP server" {
		t.Errorf("disconnect Error = %q", resp.Error)
	}
}

func TestSMTP_ArgumentErrors(t *testing.T) {
	env := newTestEnv(t)
	base := Args{"to": []any{"bob@example.com"}, "subject": "Hi", "body": "Hello"}

	tests := []struct {
		name    string
		command string
		args    Args
		want    string
	}{
		{"missing to", "send", Args{"subject": "Hi", "body": "Hello"}, "Missing required argument: to"},
		{"missing subject", "send", Args{"to": "bob@example.com", "body": "Hello"}, "Missing required argument: subject"},
		{"missing body", "send", Args{"to": "bob@example.com", "subject": "Hi"}, "Missing required argument: body"},
		{"bad recipient", "send", merge(base, Args{"to": []any{"bob@example.com", "not an address"}}), "Invalid email address in to[1]: not an address"},
		{"bad cc", "send", merge(base, Args{"cc": []any{"nope"}}), "Invalid email address in cc[0]: nope"},
		{"missing html body", "send-html", Args{"to": "bob@example.com", "subject": "Hi"}, "Missing required argument: html_body"},
		{"missing attachments", "send-with-attachment", base, "Missing required argument: attachments"},
		{"missing attachment file", "send-with-attachment", merge(base, Args{"attachments": []any{"/nonexistent/report.pdf"}}),
			"Failed to send email: attachment not found: /nonexistent/report.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.run(ToolSMTP, tt.command, tt.args)
			if resp.Error != tt.want {
				t.Errorf("Error = %q, want %q", resp.Error, tt.want)
			}
		})
	}
}

func TestSMTP_AttachmentTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.session.cfg.Limits.MaxAttachmentBytes = 4

	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}

	resp := env.run(ToolSMTP, "send-with-attachment", Args{
		"to":          "bob@example.com",
		"subject":     "Hi",
		"body":        "Hello",
		"attachments": []any{path},
		"server":      "127.0.0.1",
		"username":    "user@example.com",
		"password":    "secret",
		"port":        1,
	})
	if !strings.HasPrefix(resp.Error, "Failed to send email: attachment too large") {
		t.Errorf("Error = %q, want size failure", resp.Error)
	}
}

func TestSMTP_SendAutoConnect(t *testing.T) {
	env := newTestEnv(t)
	be, conn := startSubmission(t)

	resp := env.run(ToolSMTP, "send", merge(conn, Args{
		"to":      []any{"bob@example.com"},
		"cc":      "carol@example.com",
		"bcc":     []any{"dave@example.com"},
		"subject": "Status",
		"body":    "All good",
	}))
	if resp.Failed() {
		t.Fatalf("send error = %s", resp.Error)
	}
	result, ok := resp.Result.(*smtp.SendResult)
	if !ok {
		t.Fatalf("Result = %T, want *smtp.SendResult", resp.Result)
	}
	if !result.Sent || result.From != "user@example.com" || result.Subject != "Status" {
		t.Errorf("result = %+v", result)
	}

	got := be.all()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if want := "bob@example.com carol@example.com dave@example.com"; strings.Join(got[0].to, " ") != want {
		t.Errorf("RCPT = %v, want %s", got[0].to, want)
	}
	if strings.Contains(got[0].data, "dave@example.com") {
		t.Error("Bcc address leaked into the message")
	}

	if env.session.smtp.Connected() {
		t.Error("auto-connected SMTP session left open")
	}
	if env.dialer.servers[0] != "imap.example.com" {
		t.Errorf("echo server = %q, want imap.example.com", env.dialer.servers[0])
	}
	if !strings.Contains(strings.Join(env.conn.calls, ","), "append Sent") {
		t.Errorf("calls = %v, want append to Sent", env.conn.calls)
	}
	if !strings.Contains(string(env.conn.appended), "Subject: Status") {
		t.Errorf("appended message missing subject: %q", env.conn.appended)
	}
}

func TestSMTP_ConnectPersists(t *testing.T) {
	env := newTestEnv(t)
	be, conn := startSubmission(t)

	result := resultMap(t, env.run(ToolSMTP, "connect", conn))
	if result["connected"] != true || result["tls"] != false {
		t.Errorf("connect result = %v", result)
	}

	resp := env.run(ToolSMTP, "send-html", Args{
		"to":        "bob@example.com",
		"subject":   "Report",
		"html_body": "<p>Done</p>",
		"text_body": "Done",
	})
	if resp.Failed() {
		t.Fatalf("send-html error = %s", resp.Error)
	}
	if !env.session.smtp.Connected() {
		t.Error("explicit session closed after send")
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("notes"), 0600); err != nil {
		t.Fatal(err)
	}
	resp = env.run(ToolSMTP, "send-with-attachment", Args{
		"to":          "bob@example.com",
		"subject":     "Files",
		"body":        "See attached",
		"attachments": path,
	})
	if resp.Failed() {
		t.Fatalf("send-with-attachment error = %s", resp.Error)
	}
	if res := resp.Result.(*smtp.SendResult); len(res.Attachments) != 1 || res.Attachments[0].Filename != "notes.txt" {
		t.Errorf("Attachments = %+v", res.Attachments)
	}

	got := be.all()
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	if !strings.Contains(got[0].data, "text/html") {
		t.Error("HTML part missing")
	}
	if !strings.Contains(got[1].data, "notes.txt") {
		t.Error("attachment filename missing")
	}

	resultMap(t, env.run(ToolSMTP, "disconnect", nil))
	if env.session.smtp.Connected() {
		t.Error("session still connected after disconnect")
	}
}

func TestSMTP_ConnectErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args Args
		want string
	}{
		{"missing username", Args{"server": "smtp.example.com", "password": "p"}, "Missing required argument: username"},
		{"bad port", Args{"server": "smtp.example.com", "username": "u", "password": "p", "port": 0}, "Invalid port: 0 (must be 1-65535)"},
		{"bad imap port", Args{"server": "smtp.example.com", "username": "u", "password": "p", "imap_port": 99999}, "Invalid port: 99999 (must be 1-65535)"},
		{"bad port type", Args{"server": "smtp.example.com", "port": "abc"}, "Invalid port: abc (must be integer)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.run(ToolSMTP, "connect", tt.args)
			if resp.Error != tt.want {
				t.Errorf("Error = %q, want %q", resp.Error, tt.want)
			}
		})
	}
}

func TestEchoSettings(t *testing.T) {
	p := credentials{Profile: &profileFixture}

	tests := []struct {
		name  string
		args  Args
		creds credentials
		want  smtp.EchoSettings
		ssl   *bool
	}{
		{"none", Args{}, credentials{}, smtp.EchoSettings{}, nil},
		{"profile", Args{}, p, smtp.EchoSettings{Server: "imap.work.example", Port: 993}, boolPtr(true)},
		{"explicit overrides profile", Args{"imap_server": "mail.other", "imap_port": 143, "imap_ssl": false}, p,
			smtp.EchoSettings{Server: "mail.other", Port: 143}, boolPtr(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := echoSettings(tt.args, tt.creds)
			if err != nil {
				t.Fatalf("echoSettings() error = %v", err)
			}
			if got.Server != tt.want.Server || got.Port != tt.want.Port {
				t.Errorf("echoSettings() = %+v, want %+v", got, tt.want)
			}
			switch {
			case tt.ssl == nil && got.SSL != nil:
				t.Errorf("SSL = %v, want unset", *got.SSL)
			case tt.ssl != nil && (got.SSL == nil || *got.SSL != *tt.ssl):
				t.Errorf("SSL = %v, want %v", got.SSL, *tt.ssl)
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }
