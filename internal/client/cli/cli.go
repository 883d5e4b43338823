// Package cli implements the chartsync command line: the daemon and the
// one-shot commands operators use to inspect and repair the sync queue.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/client/iocli"
	"github.com/iudanet/chartsync/internal/config"
	"github.com/iudanet/chartsync/internal/logging"
)

// BuildInfo is set via ldflags during build
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

type globalFlags struct {
	configPath     string
	dbPath         string
	serverURL      string
	passphraseFile string
	logLevel       string
	direct         bool
}

// Cli holds state shared by all commands of one invocation
type Cli struct {
	io     iocli.IO
	cfg    *config.Config
	logger *logging.Logger
	info   BuildInfo
	flags  globalFlags
}

// Option configures the CLI
type Option func(*Cli)

// WithIO replaces terminal I/O. Используется в тестах.
func WithIO(io iocli.IO) Option {
	return func(c *Cli) { c.io = io }
}

// NewRootCommand builds the chartsync command tree
func NewRootCommand(info BuildInfo, opts ...Option) *cobra.Command {
	c := &Cli{info: info}
	for _, opt := range opts {
		opt(c)
	}

	root := &cobra.Command{
		Use:           "chartsync",
		Short:         "Offline-first sync of clinical records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.io == nil {
				c.io = iocli.NewStdio(os.Stdin, cmd.OutOrStdout())
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			return c.loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				return c.logger.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVar(&c.flags.dbPath, "db", "", "Path to the local queue database")
	pf.StringVar(&c.flags.serverURL, "server", "", "Backend URL")
	pf.StringVar(&c.flags.passphraseFile, "passphrase-file", "", "File containing the store passphrase")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&c.flags.direct, "direct", false, "Open the local store even if a daemon is running")

	root.AddCommand(
		c.newDaemonCommand(),
		c.newEnqueueCommand(),
		c.newSyncCommand(),
		c.newStatusCommand(),
		c.newListCommand(),
		c.newRetryCommand(),
		c.newRetryFailedCommand(),
		c.newClearSyncedCommand(),
		c.newClearFailedCommand(),
		c.newClearCommand(),
		c.newConflictsCommand(),
		c.newResolveCommand(),
		c.newRecordsCommand(),
		c.newInitCommand(),
		c.newVersionCommand(),
	)
	return root
}

// loadConfig reads the config file and applies command line overrides
func (c *Cli) loadConfig(cmd *cobra.Command) error {
	cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
	if err != nil {
		return err
	}
	if c.flags.dbPath != "" {
		path, err := config.ExpandPath(c.flags.dbPath)
		if err != nil {
			return err
		}
		cfg.Client.DBPath = path
	}
	if c.flags.serverURL != "" {
		cfg.Client.ServerURL = strings.TrimRight(c.flags.serverURL, "/")
	}
	if c.flags.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(c.flags.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.Logging
	if !isDaemon(cmd) {
		// одноразовые команды пишут лог только в stderr
		logCfg.File = ""
	}
	logger, err := logging.New(logging.Options{
		Output:     cmd.ErrOrStderr(),
		Level:      logCfg.Level,
		Format:     logCfg.Format,
		File:       logCfg.File,
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAgeDays,
		Compress:   logCfg.Compress,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *Cli) log() *slog.Logger {
	if c.logger == nil {
		return logging.Discard()
	}
	return c.logger.Logger
}

// passphrase returns the store passphrase from the environment, config file
// or --passphrase-file. Empty means no encryption.
func (c *Cli) passphrase() (string, error) {
	if c.cfg.Client.Passphrase != "" {
		return c.cfg.Client.Passphrase, nil
	}
	if c.flags.passphraseFile == "" {
		return "", nil
	}
	content, err := os.ReadFile(c.flags.passphraseFile)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase file: %w", err)
	}
	passphrase := strings.TrimSpace(string(content))
	if passphrase == "" {
		return "", errors.New("passphrase file is empty")
	}
	return passphrase, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for cur := cmd; cur != nil; cur = cur.Parent() {
		if cur.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isDaemon(cmd *cobra.Command) bool {
	return cmd.Name() == "daemon"
}

// Execute runs the root command and returns the process exit code
func Execute(ctx context.Context, info BuildInfo) int {
	if err := NewRootCommand(info).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
