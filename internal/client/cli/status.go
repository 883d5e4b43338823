package cli

import (
	"github.com/spf13/cobra"
)

func (c *Cli) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				status, err := s.GetStatus(cmd.Context())
				if err != nil {
					return err
				}
				out, err := renderTemplate(statusTmpl, status)
				if err != nil {
					return err
				}
				c.io.Printf("%s", out)
				if status.FailedCount > 0 {
					c.io.Println("Run 'chartsync retry-failed' to retry failed items.")
				}
				if status.ConflictCount > 0 {
					c.io.Println("Run 'chartsync conflicts' to review conflicts.")
				}
				return nil
			})
		},
	}
}
