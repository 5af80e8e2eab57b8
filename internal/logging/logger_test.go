package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "default config",
			cfg:  DefaultConfig(),
		},
		{
			name: "debug level",
			cfg:  Config{Level: "debug", Format: "json", Output: "stderr"},
		},
		{
			name: "warning level (alias)",
			cfg:  Config{Level: "warning", Format: "json", Output: "stderr"},
		},
		{
			name: "text format",
			cfg:  Config{Level: "info", Format: "text", Output: "stderr"},
		},
		{
			name: "stdout output",
			cfg:  Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "empty output defaults to stderr",
			cfg:  Config{Level: "info", Format: "json", Output: ""},
		},
		{
			name: "invalid level defaults to warn",
			cfg:  Config{Level: "invalid", Format: "json", Output: "stderr"},
		},
		{
			name:    "invalid file path",
			cfg:     Config{Level: "info", Format: "json", Output: "/nonexistent/path/log.txt"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && (logger == nil || logger.Logger == nil) {
				t.Error("New() returned nil logger without error")
			}
		})
	}
}

func TestNewWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger, err := New(Config{Level: "info", Format: "json", Output: logFile})
	if err != nil {
		t.Fatalf("New() with file output failed: %v", err)
	}
	logger.Info("hello")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("Log file was not created at %s", logFile)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %s, want json", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("Output = %s, want stderr", cfg.Output)
	}
}

func TestLogger_ComponentLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json", false)

	components := map[string]*Logger{
		"smtp":     logger.SMTP(),
		"imap":     logger.IMAP(),
		"profile":  logger.Profile(),
		"commands": logger.Commands(),
	}

	for name, l := range components {
		buf.Reset()
		l.Info("event")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("%s: invalid JSON log line: %v", name, err)
		}
		if entry["component"] != name {
			t.Errorf("component = %v, want %s", entry["component"], name)
		}
	}
}

func TestLogger_WithError(t *testing.T) {
	logger := Discard()

	withErr := logger.WithError(errors.New("test error"))
	if withErr == logger {
		t.Error("WithError() should return a new logger instance")
	}
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return same logger")
	}
}

func TestContextAttrsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "json", false)

	ctx := context.Background()
	ctx = WithCommand(ctx, "fetch")
	ctx = WithAccount(ctx, "work")
	ctx = WithProtocol(ctx, "imap")
	ctx = WithMessageID(ctx, "42")
	ctx = WithMailbox(ctx, "INBOX")

	logger.ErrorContext(ctx, "fetch failed", errors.New("boom"), "attempt", 1)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}

	want := map[string]string{
		"command":    "fetch",
		"account":    "work",
		"protocol":   "imap",
		"message_id": "42",
		"mailbox":    "INBOX",
		"error":      "boom",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %s", k, entry[k], v)
		}
	}
	if entry["attempt"] != float64(1) {
		t.Errorf("attempt = %v, want 1", entry["attempt"])
	}
}

func TestExtractContextAttrs(t *testing.T) {
	t.Run("partial attributes", func(t *testing.T) {
		ctx := WithCommand(context.Background(), "search")
		ctx = WithMailbox(ctx, "Archive")

		attrs := extractContextAttrs(ctx)
		if len(attrs) != 2 {
			t.Errorf("Expected 2 attrs, got %d", len(attrs))
		}
	})

	t.Run("empty values skipped", func(t *testing.T) {
		ctx := WithAccount(context.Background(), "")
		if attrs := extractContextAttrs(ctx); len(attrs) != 0 {
			t.Errorf("Expected 0 attrs, got %d", len(attrs))
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "text", false)

	logger.InfoContext(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Errorf("info message written at warn level: %q", buf.String())
	}

	logger.WarnContext(context.Background(), "loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("warn message missing: %q", buf.String())
	}
}

func TestMaskUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@***"},
		{"alice", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := MaskUsername(tt.in); got != tt.want {
			t.Errorf("MaskUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
