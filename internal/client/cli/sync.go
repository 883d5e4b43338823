package cli

import (
	"errors"

	"github.com/spf13/cobra"

	chsync "github.com/iudanet/chartsync/internal/client/sync"
)

func (c *Cli) newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				c.io.Println("=== Synchronization ===")
				res, err := s.TriggerSyncNow(cmd.Context())
				if errors.Is(err, chsync.ErrOffline) {
					return errors.New("backend is unreachable; queued changes will sync when it is back")
				}
				if err != nil {
					return err
				}
				if res.Skipped {
					c.io.Println("A sync cycle is already running.")
					return nil
				}

				c.io.Printf("Synced:     %d\n", res.Synced)
				c.io.Printf("Failed:     %d\n", res.Failed)
				if res.Conflicts > 0 {
					c.io.Printf("Conflicts:  %d (run 'chartsync conflicts')\n", res.Conflicts)
				}
				if res.Discarded > 0 {
					c.io.Printf("Discarded:  %d\n", res.Discarded)
				}
				return nil
			})
		},
	}
}
