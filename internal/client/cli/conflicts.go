package cli

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/models"
)

func (c *Cli) newConflictsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Show changes waiting for a conflict decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				conflicts, err := s.Conflicts(cmd.Context())
				if err != nil {
					return err
				}
				if len(conflicts) == 0 {
					c.io.Println("No conflicts")
					return nil
				}
				for _, conflict := range conflicts {
					out, err := renderTemplate(conflictTmpl, conflict)
					if err != nil {
						return err
					}
					c.io.Printf("%s", out)
				}
				return nil
			})
		},
	}
}

func (c *Cli) newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <item-id> <keep-local|keep-server|cancel>",
		Short: "Resolve a conflict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, err := models.ParseResolution(args[1])
			if err != nil {
				return err
			}
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				if err := s.ResolveConflict(cmd.Context(), args[0], resolution); err != nil {
					return err
				}
				switch resolution {
				case models.ResolutionCancel:
					c.io.Printf("Item %s stays parked\n", args[0])
				default:
					c.io.Printf("Item %s resolved as %s; it is applied on the next sync\n", args[0], resolution)
				}
				return nil
			})
		},
	}
}
