package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/internal/validation"
)

func (c *Cli) newEnqueueCommand() *cobra.Command {
	var priority string
	var cache bool

	cmd := &cobra.Command{
		Use:   "enqueue <create|update|delete> <table> <payload-json|->",
		Short: "Queue a mutation for the backend",
		Long: "Queue a mutation for the backend. The payload is a JSON object with an \"id\" field;\n" +
			"pass - to read it from stdin.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := models.ParseAction(args[0])
			if err != nil {
				return err
			}
			table, err := validation.ValidateTable(args[1])
			if err != nil {
				return err
			}
			prio, err := models.ParsePriority(priority)
			if err != nil {
				return err
			}
			payload, err := readPayload(args[2], cmd.InOrStdin())
			if err != nil {
				return err
			}

			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				enqueue := s.Enqueue
				if cache {
					enqueue = s.ApplyMutation
				}
				id, err := enqueue(cmd.Context(), action, table, payload, prio)
				if err != nil {
					return err
				}
				c.io.Printf("Queued %s %s as %s\n", action, table, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", string(models.PriorityNormal), "Priority (high, normal)")
	cmd.Flags().BoolVar(&cache, "cache", true, "Apply the mutation to the local record cache as well")
	return cmd
}

func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}
	if _, err := validation.ValidateRecordData(data); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return json.RawMessage(data), nil
}

