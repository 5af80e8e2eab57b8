package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/mailbridge/internal/audit"
	"github.com/fenilsonani/mailbridge/internal/commands"
	"github.com/fenilsonani/mailbridge/internal/config"
	"github.com/fenilsonani/mailbridge/internal/logging"
	"github.com/fenilsonani/mailbridge/internal/metrics"
	"github.com/fenilsonani/mailbridge/internal/profile"
	"github.com/fenilsonani/mailbridge/internal/security"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger

	// exitCode is set when a command printed an error envelope.
	exitCode int
)

func main() {
	code := execute(os.Stdout)

	if cfg != nil && cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil && logger != nil {
			logger.Warn("Failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	os.Exit(code)
}

// execute runs the root command. A failure before any command produced its
// own envelope, such as a bad configuration file, is printed as an error
// envelope on stdout.
func execute(stdout io.Writer) int {
	exitCode = 0
	if err := rootCmd.Execute(); err != nil {
		if perr := printJSON(stdout, commands.Response{Error: err.Error()}); perr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return exitCode
}

var rootCmd = &cobra.Command{
	Use:   "mailbridge",
	Short: "IMAP and SMTP mail operations with JSON output",
	Long: `Read, search and manage mail over IMAP and send mail over SMTP.
Every command prints one JSON envelope:
  {"status": "success", "result": {...}}
  {"status": "sandbox", "result": {...}}
  {"error": "..."}`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help commands
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
}

// newSession wires a command session from the loaded configuration. The
// returned func releases the session and its collaborators.
func newSession() (*commands.Session, func(), error) {
	opts := commands.Options{
		Config:   cfg,
		Logger:   logger,
		Profiles: profile.NewManager(cfg.Profiles.Path, logger),
	}

	if cfg.Audit.Enabled {
		auditLog, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		opts.Audit = auditLog
	}

	if cfg.DKIM.Enabled {
		signer, err := security.NewDKIMSigner(cfg.DKIM.Domain, cfg.DKIM.Selector, cfg.DKIM.KeyFile)
		if err != nil {
			opts.Audit.Close()
			return nil, nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		opts.Signer = signer
	}

	s := commands.NewSession(opts)
	return s, func() {
		s.Close()
		if err := opts.Audit.Close(); err != nil {
			logger.Warn("Failed to close audit log", "error", err)
		}
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run commands read as JSON lines from stdin",
	Long: `Read one request per line from stdin:
  {"tool": "imap", "command": "connect", "args": {...}}
and write one JSON envelope per line to stdout. Connections opened with
"connect" stay open until "disconnect" or end of input.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := newSession()
		if err != nil {
			return err
		}
		defer release()

		ctx, cancel := signalContext()
		defer cancel()
		return s.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mailbridge %s\n", commands.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(toolCommand(commands.ToolIMAP, "Read and manage mail over IMAP"))
	rootCmd.AddCommand(toolCommand(commands.ToolSMTP, "Send mail over SMTP"))
	rootCmd.AddCommand(toolCommand(commands.ToolProfile, "Manage stored account profiles"))
	rootCmd.AddCommand(toolCommand(commands.ToolAudit, "Inspect the audit log of mailbox changes"))
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
