// Package cli implements the command line of the reference backend.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/config"
	"github.com/iudanet/chartsync/internal/logging"
	"github.com/iudanet/chartsync/internal/server"
	"github.com/iudanet/chartsync/internal/server/handlers"
	"github.com/iudanet/chartsync/internal/server/storage/sqlite"
	"github.com/iudanet/chartsync/internal/validation"
	"github.com/iudanet/chartsync/pkg/api"
)

// ErrNoSecret is returned when a command needs the signing secret and none is set.
var ErrNoSecret = fmt.Errorf("server.jwt_secret is empty (set it in the config or %s)", config.EnvJWTSecret)

// BuildInfo holds values injected at link time.
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	info       BuildInfo
	configPath string
	logLevel   string
}

// NewRootCommand builds the backend command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	a := &app{info: info}

	root := &cobra.Command{
		Use:           "chartsync-server",
		Short:         "Reference backend for chartsync clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			return a.loadConfig()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Configuration file path")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		a.newServeCommand(),
		a.newTokenCommand(),
		a.newVersionCommand(),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, _, _, err := config.Load(strings.TrimSpace(a.configPath))
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.logLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) jwtConfig() (handlers.JWTConfig, error) {
	if a.cfg.Server.JWTSecret == "" {
		return handlers.JWTConfig{}, ErrNoSecret
	}
	return handlers.JWTConfig{
		Secret:         []byte(a.cfg.Server.JWTSecret),
		AccessTokenTTL: a.cfg.Server.TokenTTL(),
	}, nil
}

func (a *app) newServeCommand() *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the records API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if bind != "" {
				a.cfg.Server.Bind = bind
			}
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override listen address")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	jwtCfg, err := a.jwtConfig()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(a.cfg.Server.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("ensure database directory: %w", err)
		}
	}
	store, err := sqlite.New(ctx, a.cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}()

	srv := server.New(a.logger.Logger, store, server.Options{
		Bind:       a.cfg.Server.Bind,
		Version:    a.info.Version,
		JWT:        jwtCfg,
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow(),
	})
	defer srv.Close()

	a.logger.Info("Starting backend", "bind", a.cfg.Server.Bind, "db", a.cfg.Server.DBPath, "version", a.info.Version)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) newTokenCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an access token for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateSubject(args[0]); err != nil {
				return err
			}
			jwtCfg, err := a.jwtConfig()
			if err != nil {
				return err
			}
			if ttl > 0 {
				jwtCfg.AccessTokenTTL = ttl
			}

			token, expiresIn, err := handlers.GenerateAccessToken(jwtCfg, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.TokenResponse{
				AccessToken: token,
				TokenType:   "Bearer",
				ExpiresIn:   expiresIn,
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Override token lifetime (e.g. 720h)")
	return cmd
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "chartsync-server")
			fmt.Fprintf(out, "Version:    %s\n", a.info.Version)
			fmt.Fprintf(out, "Build Date: %s\n", a.info.BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", a.info.GitCommit)
			return nil
		},
	}
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, info BuildInfo) int {
	if err := NewRootCommand(info).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
