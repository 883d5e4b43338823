package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/chartsync/internal/client/localapi"
)

func (c *Cli) newDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync engine in the foreground",
		Long: "Run the scheduler, the backend health prober and the local API until\n" +
			"interrupted. Other commands talk to the daemon while it runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runDaemon(ctx)
		},
	}
}

func (c *Cli) runDaemon(ctx context.Context) error {
	logger := c.log()

	rt, err := c.openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	logger.Info("Daemon starting",
		"version", c.info.Version,
		"server", c.cfg.Client.ServerURL,
		"db", c.cfg.Client.DBPath,
		"encrypted", rt.store.Encrypted(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Engine.Run(gctx)
	})
	g.Go(func() error {
		return rt.prober.Run(gctx)
	})
	if c.cfg.LocalAPI.Enabled {
		srv := localapi.NewServer(logger, rt.Engine, c.cfg.LocalAPI.Bind)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("Daemon stopped")
	return err
}
