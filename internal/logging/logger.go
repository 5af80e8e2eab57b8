// Package logging provides structured logging for mailbridge.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	commandKey   contextKey = "command"
	accountKey   contextKey = "account"
	protocolKey  contextKey = "protocol"
	messageIDKey contextKey = "message_id"
	mailboxKey   contextKey = "mailbox"
)

// Logger wraps slog with mailbridge-specific functionality.
type Logger struct {
	*slog.Logger
}

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output is the output destination (stdout, stderr, or file path).
	// stdout is reserved for command results, so stderr is the default.
	Output string
	// AddSource adds source code location to log entries.
	AddSource bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "warn",
		Format:    "json",
		Output:    "stderr",
		AddSource: false,
	}
}

// New creates a new Logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var output io.Writer
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		output = f
	}

	return NewWithWriter(output, level, cfg.Format, cfg.AddSource), nil
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level, format string, addSource bool) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default returns a default logger.
func Default() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithCommand returns a new context with the command name.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// WithAccount returns a new context with the profile name.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// WithProtocol returns a new context with the protocol.
func WithProtocol(ctx context.Context, protocol string) context.Context {
	return context.WithValue(ctx, protocolKey, protocol)
}

// WithMessageID returns a new context with the message ID.
func WithMessageID(ctx context.Context, msgID string) context.Context {
	return context.WithValue(ctx, messageIDKey, msgID)
}

// WithMailbox returns a new context with the mailbox name.
func WithMailbox(ctx context.Context, mailbox string) context.Context {
	return context.WithValue(ctx, mailboxKey, mailbox)
}

// extractContextAttrs extracts logging attributes from context.
func extractContextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	for _, key := range []contextKey{commandKey, accountKey, protocolKey, messageIDKey, mailboxKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}

	return attrs
}

func withContextArgs(ctx context.Context, args []any) []any {
	attrs := extractContextAttrs(ctx)
	allArgs := make([]any, 0, len(attrs)*2+len(args))
	for _, attr := range attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	return append(allArgs, args...)
}

// InfoContext logs an info message with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, withContextArgs(ctx, args)...)
}

// ErrorContext logs an error message with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{"error", err.Error()}, args...)
	}
	l.Logger.ErrorContext(ctx, msg, withContextArgs(ctx, args)...)
}

// WarnContext logs a warning message with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, withContextArgs(ctx, args)...)
}

// DebugContext logs a debug message with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, withContextArgs(ctx, args)...)
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
	}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

func (l *Logger) component(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// SMTP returns a logger configured for SMTP operations.
func (l *Logger) SMTP() *Logger { return l.component("smtp") }

// IMAP returns a logger configured for IMAP operations.
func (l *Logger) IMAP() *Logger { return l.component("imap") }

// Profile returns a logger configured for profile store operations.
func (l *Logger) Profile() *Logger { return l.component("profile") }

// Commands returns a logger configured for the command layer.
func (l *Logger) Commands() *Logger { return l.component("commands") }

// MaskUsername hides everything after the local part of an address.
func MaskUsername(username string) string {
	if i := strings.Index(username, "@"); i >= 0 {
		return username[:i] + "@***"
	}
	return "***"
}
