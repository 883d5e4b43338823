package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/models"
)

func (c *Cli) newListCommand() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items in processing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := strings.ToLower(strings.TrimSpace(statusFilter))
			switch filter {
			case "", "pending", "failed", "synced", "conflict":
			default:
				return fmt.Errorf("unknown status filter %q (pending, failed, synced, conflict)", statusFilter)
			}

			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				items, err := s.Queue(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					state := itemState(item)
					if filter != "" && state != filter {
						continue
					}
					recordID, _ := item.RecordID()
					rows = append(rows, []string{
						item.ID,
						string(item.Action),
						string(item.Table),
						recordID,
						string(item.Priority),
						state,
						strconv.Itoa(item.RetryCount),
						formatTime(item.EnqueuedAt),
						truncate(item.LastError, 40),
					})
				}
				if len(rows) == 0 {
					c.io.Println("Queue is empty")
					return nil
				}
				_, err = c.io.Write([]byte(renderTable(
					[]string{"ID", "Action", "Table", "Record", "Priority", "State", "Retries", "Enqueued", "Last error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show items in this state (pending, failed, synced, conflict)")
	return cmd
}

// itemState is the state an operator cares about
func itemState(item *models.QueueItem) string {
	switch {
	case item.AwaitingResolution:
		return "conflict"
	case item.IsFailed():
		return "failed"
	case item.Status == models.StatusSynced:
		return "synced"
	}
	return "pending"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (c *Cli) newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Reset retries of one item and sync it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				if err := s.RetryItem(cmd.Context(), args[0]); err != nil {
					return err
				}
				c.io.Printf("Item %s will be retried\n", args[0])
				return nil
			})
		},
	}
}

func (c *Cli) newRetryFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Retry every failed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				n, err := s.RetryAllFailed(cmd.Context())
				if err != nil {
					return err
				}
				c.io.Printf("Retried %d failed item(s)\n", n)
				return nil
			})
		},
	}
}

func (c *Cli) newClearSyncedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-synced",
		Short: "Remove synced items from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				n, err := s.ClearSynced(cmd.Context())
				if err != nil {
					return err
				}
				c.io.Printf("Removed %d synced item(s)\n", n)
				return nil
			})
		},
	}
}

func (c *Cli) newClearFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Drop failed items; their changes never reach the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				n, err := s.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				c.io.Printf("Removed %d failed item(s)\n", n)
				return nil
			})
		},
	}
}

func (c *Cli) newClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queue item, including unsynced changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := c.io.ReadInput("This drops all unsynced changes. Type 'yes' to continue: ")
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if answer != "yes" {
					c.io.Println("Aborted")
					return nil
				}
			}
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				if err := s.ClearQueue(cmd.Context()); err != nil {
					return err
				}
				c.io.Println("Queue cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
